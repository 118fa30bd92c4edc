// Package session runs a test case repeatedly across a fixed number of
// worker slots until a wall-clock deadline, folding every completed
// attempt into live session statistics.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/perfgo/deflake/aggregate"
	"github.com/perfgo/deflake/model"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidWorkers is returned by New when the worker count is below 1.
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
	// ErrAlreadyStarted is returned when Run is called a second time.
	ErrAlreadyStarted = errors.New("session already started")
)

// Runner runs one attempt of a test case and always returns an outcome;
// *attempt.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, tc model.TestCase, timeout time.Duration) model.AttemptOutcome
}

// Config holds the parameters of one session. Workers is taken as is;
// callers resolve any CPU-derived default before constructing the
// scheduler.
type Config struct {
	// Wall-clock budget for submitting new attempts
	TargetDuration time.Duration
	// Number of worker slots (W)
	Workers int
	// Per-attempt timeout, enforced by the runner; <= 0 disables it
	AttemptTimeout time.Duration
}

// Scheduler drives one session. It is single use.
type Scheduler struct {
	logger zerolog.Logger
	runner Runner
	cfg    Config

	mu       sync.RWMutex
	started  bool
	stats    model.SessionStats
	inFlight int
}

// New creates a scheduler. It fails fast on an invalid configuration so
// no attempt is ever scheduled with one.
func New(logger zerolog.Logger, runner Runner, cfg Config) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("session runner must not be nil")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidWorkers, cfg.Workers)
	}

	return &Scheduler{
		logger: logger,
		runner: runner,
		cfg:    cfg,
	}, nil
}

// Config returns the configuration the scheduler was created with.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Run executes the session for tc and returns the frozen statistics.
//
// The pool is filled with one attempt per worker slot, then every
// completion is folded and replaced by a new attempt while the deadline
// has not passed. Once the deadline passes or ctx is cancelled the session
// drains: nothing new is submitted and attempts already running finish on
// their own, bounded only by the per-attempt timeout.
//
// Only configuration problems are returned as errors; every attempt-level
// problem ends up in the statistics.
func (s *Scheduler) Run(ctx context.Context, tc model.TestCase) (*model.SessionStats, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	deadline := startTime.Add(s.cfg.TargetDuration)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.started = true
	s.stats = model.SessionStats{
		TestCase:       tc,
		TargetDuration: s.cfg.TargetDuration,
		Workers:        s.cfg.Workers,
		StartedAt:      startTime,
		State:          model.StateFilling,
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("test", tc.FullName).
		Dur("duration", s.cfg.TargetDuration).
		Int("workers", s.cfg.Workers).
		Dur("attempt_timeout", s.cfg.AttemptTimeout).
		Msg("Starting deflake session")

	// Attempts outlive a cancelled session: they are bounded by their own
	// timeout, never cut short.
	attemptCtx := context.WithoutCancel(ctx)

	// Every attempt sends exactly once and at most Workers are outstanding,
	// so senders never block.
	completions := make(chan model.AttemptOutcome, s.cfg.Workers)

	submitted := 0
	submit := func() {
		submitted++
		s.mu.Lock()
		s.inFlight++
		s.mu.Unlock()
		go s.runAttempt(attemptCtx, tc, submitted, completions)
	}

	// One attempt per slot, even for a zero budget, so a session never
	// ends without a completed attempt.
	for i := 0; i < s.cfg.Workers; i++ {
		submit()
	}
	s.updateState(false)

	draining := false
	drain := func(reason string) {
		if draining {
			return
		}
		draining = true
		s.updateState(true)
		s.logger.Debug().
			Str("reason", reason).
			Int("in_flight", s.inFlightCount()).
			Msg("Session draining")
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	deadlineC := timer.C
	doneC := ctx.Done()

	for s.inFlightCount() > 0 {
		select {
		case out := <-completions:
			s.complete(out, startTime)

			if draining {
				continue
			}
			if ctx.Err() != nil {
				drain("cancelled")
				continue
			}
			if !time.Now().Before(deadline) {
				drain("deadline")
				continue
			}
			if s.inFlightCount() < s.cfg.Workers {
				submit()
			}
			s.updateState(false)

		case <-deadlineC:
			deadlineC = nil
			drain("deadline")

		case <-doneC:
			doneC = nil
			drain("cancelled")
		}
	}

	s.mu.Lock()
	s.stats.Elapsed = time.Since(startTime)
	s.stats.State = model.StateComplete
	final := s.stats.Clone()
	s.mu.Unlock()

	s.logger.Info().
		Str("test", tc.FullName).
		Int("attempts", final.AttemptsCompleted).
		Int("failures", final.FailureCount).
		Dur("elapsed", final.Elapsed).
		Msg("Deflake session complete")

	return &final, nil
}

// runAttempt runs one attempt and reports exactly one outcome. A fault in
// the runner itself becomes a failed attempt with ReturnCodeWorkerError.
func (s *Scheduler) runAttempt(ctx context.Context, tc model.TestCase, id int, done chan<- model.AttemptOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().
				Int("attempt", id).
				Interface("panic", r).
				Msg("Attempt worker failed")
			done <- model.AttemptOutcome{
				Success:    false,
				Duration:   time.Since(start),
				Stderr:     fmt.Sprintf("Process execution error: %v", r),
				ReturnCode: model.ReturnCodeWorkerError,
			}
		}
	}()

	done <- s.runner.Run(ctx, tc, s.cfg.AttemptTimeout)
}

// complete folds one outcome. This is the only place stats change while
// the session runs.
func (s *Scheduler) complete(out model.AttemptOutcome, startTime time.Time) {
	s.mu.Lock()
	s.inFlight--
	s.stats = aggregate.Fold(s.stats, out)
	s.stats.Elapsed = time.Since(startTime)
	attempts := s.stats.AttemptsCompleted
	s.mu.Unlock()

	s.logger.Debug().
		Int("attempts", attempts).
		Bool("success", out.Success).
		Int("return_code", out.ReturnCode).
		Dur("duration", out.Duration).
		Msg("Attempt finished")
}

func (s *Scheduler) updateState(draining bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case draining || s.stats.State == model.StateDraining:
		s.stats.State = model.StateDraining
	case s.inFlight >= s.cfg.Workers:
		s.stats.State = model.StateSteady
	default:
		s.stats.State = model.StateFilling
	}
}

func (s *Scheduler) inFlightCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

// InFlight returns the number of attempts currently running.
func (s *Scheduler) InFlight() int {
	return s.inFlightCount()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.State
}

// Snapshot returns a consistent point-in-time view of the running
// session. It is safe to call from any goroutine. The returned slices
// are shared with the scheduler and must not be modified.
func (s *Scheduler) Snapshot() model.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.stats
	if snap.State != model.StateComplete && !snap.StartedAt.IsZero() {
		snap.Elapsed = time.Since(snap.StartedAt)
	}
	return snap
}
