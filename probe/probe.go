// Package probe measures a baseline timing distribution for a test case
// and estimates how many attempts fit into a time budget.
package probe

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/perfgo/deflake/aggregate"
	"github.com/perfgo/deflake/model"
	"github.com/rs/zerolog"
)

const (
	// DefaultRuns is the number of baseline runs when none is configured.
	DefaultRuns = 5
	// DefaultTimeout is the per-run timeout of the baseline runs.
	DefaultTimeout = 30 * time.Second
	// MaxEstimatedAttempts caps EstimateAttempts for near-zero medians.
	MaxEstimatedAttempts = 1_000_000

	// estimateOverhead pads the median for scheduling and process start-up.
	estimateOverhead = 1.1
)

// Runner runs one attempt of a test case; *attempt.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, tc model.TestCase, timeout time.Duration) model.AttemptOutcome
}

// TimingInfo is the result of a baseline measurement.
type TimingInfo struct {
	TestCase model.TestCase         `json:"test_case"`
	Runs     []model.AttemptOutcome `json:"runs"`
	model.TimingSummary
	SuccessRate float64 `json:"success_rate"`
}

// Probe runs baseline measurements sequentially.
type Probe struct {
	logger zerolog.Logger
	runner Runner

	// OnRun, if set, is called after each run with the number of runs done.
	OnRun func(done, total int)
}

// New creates a probe that runs attempts through runner.
func New(logger zerolog.Logger, runner Runner) *Probe {
	return &Probe{logger: logger, runner: runner}
}

// Measure runs tc numRuns times, one after another, each with its own
// timeout. Timing statistics cover every run, failed ones included: a
// failed run still cost wall-clock time.
func (p *Probe) Measure(ctx context.Context, tc model.TestCase, numRuns int, timeout time.Duration) (*TimingInfo, error) {
	if numRuns < 1 {
		return nil, fmt.Errorf("number of probe runs must be at least 1, got %d", numRuns)
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("test", tc.FullName).
		Int("runs", numRuns).
		Msg("Measuring baseline timing")

	runs := make([]model.AttemptOutcome, 0, numRuns)
	durations := make([]time.Duration, 0, numRuns)
	successes := 0

	for i := 0; i < numRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("timing probe interrupted after %d runs: %w", i, err)
		}

		out := p.runner.Run(ctx, tc, timeout)
		runs = append(runs, out)
		durations = append(durations, out.Duration)
		if out.Success {
			successes++
		}

		p.logger.Debug().
			Int("run", i+1).
			Bool("success", out.Success).
			Int("return_code", out.ReturnCode).
			Dur("duration", out.Duration).
			Msg("Probe run finished")

		if p.OnRun != nil {
			p.OnRun(i+1, numRuns)
		}
	}

	return &TimingInfo{
		TestCase:      tc,
		Runs:          runs,
		TimingSummary: aggregate.Summarize(durations),
		SuccessRate:   aggregate.SuccessRate(successes, len(runs)),
	}, nil
}

// EstimateAttempts returns how many attempts of a test with the given
// median duration fit into target: floor(target / (median*1.1)), at least
// 1 and at most MaxEstimatedAttempts. A non-positive median yields 0.
func EstimateAttempts(target, median time.Duration) int {
	if median <= 0 {
		return 0
	}

	estimate := math.Floor(target.Seconds() / (median.Seconds() * estimateOverhead))
	if estimate < 1 {
		return 1
	}
	if estimate > MaxEstimatedAttempts {
		return MaxEstimatedAttempts
	}
	return int(estimate)
}
