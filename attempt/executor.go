// Package attempt runs a single test case of a test binary as a
// subprocess and reports a structured outcome.
package attempt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/perfgo/deflake/model"
	"github.com/rs/zerolog"
)

// waitDelay bounds how long Run waits for output pipes after the process
// was killed. Grandchildren that inherited the pipes would otherwise keep
// the attempt alive past its timeout.
const waitDelay = 500 * time.Millisecond

// Executor runs attempts of test cases from one test binary.
// It holds no mutable state and is safe for concurrent use.
type Executor struct {
	logger    zerolog.Logger
	binary    string
	framework Framework
	extraArgs []string
}

// Option configures an Executor.
type Option func(*Executor)

// WithFramework sets the flag dialect of the binary (default gtest).
func WithFramework(f Framework) Option {
	return func(e *Executor) {
		e.framework = f
	}
}

// WithExtraArgs appends arguments to every invocation.
func WithExtraArgs(args ...string) Option {
	return func(e *Executor) {
		e.extraArgs = append(e.extraArgs, args...)
	}
}

// WithLogger sets the logger used for per-attempt debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an executor for binary. The binary must exist and be a
// regular file at construction time.
func New(binary string, opts ...Option) (*Executor, error) {
	info, err := os.Stat(binary)
	if err != nil {
		return nil, fmt.Errorf("test binary not found: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("test binary %s is not a regular file", binary)
	}

	e := &Executor{
		logger:    zerolog.Nop(),
		binary:    binary,
		framework: FrameworkGTest,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Binary returns the path of the test binary.
func (e *Executor) Binary() string {
	return e.binary
}

// Framework returns the flag dialect used for invocations.
func (e *Executor) Framework() Framework {
	return e.framework
}

// Args returns the arguments used to run tc.
func (e *Executor) Args(tc model.TestCase) []string {
	return BuildArgs(e.framework, tc, e.extraArgs)
}

// CommandLine returns the shell-escaped invocation for tc.
func (e *Executor) CommandLine(tc model.TestCase) string {
	return CommandLine(e.binary, e.Args(tc))
}

// Run executes tc once and waits for it to finish or for timeout to pass.
// A timeout <= 0 disables the per-attempt timeout.
//
// Run never fails: timeouts and execution errors are reported through the
// outcome's sentinel return codes.
func (e *Executor) Run(ctx context.Context, tc model.TestCase, timeout time.Duration) model.AttemptOutcome {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	args := e.Args(tc)
	cmd := exec.CommandContext(runCtx, e.binary, args...)
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	e.logger.Debug().
		Str("test", tc.FullName).
		Dur("timeout", timeout).
		Str("command", CommandLine(e.binary, args)).
		Msg("Starting attempt")

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	// Deadline hit and we killed the process: a timeout, whatever the
	// process managed to report.
	if err != nil && timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return model.AttemptOutcome{
			Success:    false,
			Duration:   duration,
			Stderr:     fmt.Sprintf("Test timed out after %s", timeout),
			ReturnCode: model.ReturnCodeTimeout,
		}
	}

	// Output pipes outlived the process, but it did exit.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		err = nil
		if code := cmd.ProcessState.ExitCode(); code != 0 {
			err = &exec.ExitError{ProcessState: cmd.ProcessState}
		}
	}

	if err == nil {
		return model.AttemptOutcome{
			Success:    true,
			Duration:   duration,
			Stdout:     stdoutBuf.String(),
			Stderr:     stderrBuf.String(),
			ReturnCode: 0,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := stderrBuf.String()
		code := exitErr.ExitCode()

		// Killed by a signal (e.g. a crash): report like a shell does so
		// the code can never collide with the sentinels.
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code = 128 + int(ws.Signal())
			stderr += fmt.Sprintf("\nterminated by signal: %s", ws.Signal())
		}

		return model.AttemptOutcome{
			Success:    false,
			Duration:   duration,
			Stdout:     stdoutBuf.String(),
			Stderr:     stderr,
			ReturnCode: code,
		}
	}

	return model.AttemptOutcome{
		Success:    false,
		Duration:   duration,
		Stderr:     fmt.Sprintf("Error running test: %v", err),
		ReturnCode: model.ReturnCodeExecError,
	}
}
