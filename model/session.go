package model

import "time"

// SessionState is the lifecycle state of a deflake session.
type SessionState uint8

const (
	// StateFilling: fewer than W attempts in flight, deadline not reached
	StateFilling SessionState = iota
	// StateSteady: exactly W attempts in flight, deadline not reached
	StateSteady
	// StateDraining: no new attempts, waiting for in-flight ones
	StateDraining
	// StateComplete: nothing in flight, stats frozen
	StateComplete
)

func (s SessionState) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateSteady:
		return "steady"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	}
	return "unknown"
}

// SessionStats accumulates the results of one session.
//
// Invariants at every observation point:
//
//	AttemptsCompleted == SuccessCount + FailureCount
//	len(Durations) == AttemptsCompleted
//
// Durations and Failures are in completion order. Values handed out as
// snapshots share backing arrays with the live accumulator and must be
// treated as read-only.
type SessionStats struct {
	TestCase TestCase `json:"test_case"`
	// Time budget the session was started with
	TargetDuration time.Duration `json:"target_duration"`
	// Number of worker slots
	Workers int `json:"workers"`

	AttemptsCompleted int `json:"attempts_completed"`
	SuccessCount      int `json:"success_count"`
	FailureCount      int `json:"failure_count"`

	// Wall-clock time since the session started
	Elapsed time.Duration `json:"elapsed"`
	// Timestamp when the session started
	StartedAt time.Time `json:"started_at"`
	// Current lifecycle state
	State SessionState `json:"state"`

	// Per-attempt durations, one per completed attempt
	Durations []time.Duration `json:"durations,omitempty"`
	// Failing outcomes
	Failures []AttemptOutcome `json:"failures,omitempty"`
}

// Flaky reports whether the session observed at least one failure.
func (s SessionStats) Flaky() bool {
	return s.FailureCount > 0
}

// SuccessRate returns SuccessCount/AttemptsCompleted, or 0 when nothing
// has completed yet.
func (s SessionStats) SuccessRate() float64 {
	if s.AttemptsCompleted <= 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.AttemptsCompleted)
}

// Clone returns a deep copy that shares no memory with s.
func (s SessionStats) Clone() SessionStats {
	c := s
	if s.Durations != nil {
		c.Durations = append([]time.Duration(nil), s.Durations...)
	}
	if s.Failures != nil {
		c.Failures = append([]AttemptOutcome(nil), s.Failures...)
	}
	return c
}

// TimingSummary is derived from a duration sequence; it is recomputed on
// demand and never stored alongside the sequence.
type TimingSummary struct {
	Count  int           `json:"count"`
	Median time.Duration `json:"median"`
	Mean   time.Duration `json:"mean"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
}
