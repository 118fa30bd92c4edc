package model

import "time"

// Sentinel return codes. Real exit codes of a process are never negative,
// and 42 is reserved by the scheduler for faults in its own execution layer.
const (
	// ReturnCodeTimeout marks an attempt killed after its per-attempt timeout.
	ReturnCodeTimeout = -1
	// ReturnCodeExecError marks an attempt that could not be launched or waited on.
	ReturnCodeExecError = -2
	// ReturnCodeWorkerError marks an attempt lost to a fault in the worker
	// that was driving it (not in the test binary).
	ReturnCodeWorkerError = 42
)

// AttemptOutcome is the result of one execution of a test case.
// It is created once by the executor and never modified afterwards.
type AttemptOutcome struct {
	// True iff the process exited with code 0
	Success bool `json:"success"`
	// Wall-clock time from launch to result, always populated
	Duration time.Duration `json:"duration"`
	// Captured standard output
	Stdout string `json:"stdout,omitempty"`
	// Captured standard error, or a description of the timeout/error
	Stderr string `json:"stderr,omitempty"`
	// Process exit code, or one of the ReturnCode* sentinels
	ReturnCode int `json:"return_code"`
}

// Seconds returns the attempt duration in seconds.
func (o AttemptOutcome) Seconds() float64 {
	return o.Duration.Seconds()
}

// TimedOut reports whether the attempt hit its per-attempt timeout.
func (o AttemptOutcome) TimedOut() bool {
	return o.ReturnCode == ReturnCodeTimeout
}
