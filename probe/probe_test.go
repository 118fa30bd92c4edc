package probe

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/perfgo/deflake/model"
)

// scriptedRunner returns canned outcomes in order and records concurrency.
type scriptedRunner struct {
	outcomes []model.AttemptOutcome
	calls    int
	inFlight atomic.Int32
	maxSeen  int32
	timeouts []time.Duration
}

func (r *scriptedRunner) Run(_ context.Context, _ model.TestCase, timeout time.Duration) model.AttemptOutcome {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	if n > r.maxSeen {
		r.maxSeen = n
	}
	r.timeouts = append(r.timeouts, timeout)
	out := r.outcomes[r.calls%len(r.outcomes)]
	r.calls++
	return out
}

var tc = model.TestCase{Name: "Flaky", FullName: "BasicTests.Flaky", SuiteName: "BasicTests"}

func TestMeasure(t *testing.T) {
	runner := &scriptedRunner{outcomes: []model.AttemptOutcome{
		{Success: true, Duration: 100 * time.Millisecond},
		{Success: false, Duration: 300 * time.Millisecond, ReturnCode: 1},
		{Success: true, Duration: 200 * time.Millisecond},
		{Success: false, Duration: 30 * time.Second, ReturnCode: model.ReturnCodeTimeout},
		{Success: true, Duration: 150 * time.Millisecond},
	}}

	var progress []int
	p := New(zerolog.Nop(), runner)
	p.OnRun = func(done, total int) {
		require.Equal(t, 5, total)
		progress = append(progress, done)
	}

	info, err := p.Measure(context.Background(), tc, 5, 30*time.Second)
	require.NoError(t, err)

	require.Equal(t, 5, runner.calls)
	require.Equal(t, int32(1), runner.maxSeen, "probe runs must not overlap")
	require.Equal(t, []int{1, 2, 3, 4, 5}, progress)
	for _, timeout := range runner.timeouts {
		require.Equal(t, 30*time.Second, timeout)
	}

	require.Len(t, info.Runs, 5)
	require.Equal(t, 5, info.Count)
	require.Equal(t, 200*time.Millisecond, info.Median)
	require.Equal(t, 100*time.Millisecond, info.Min)
	require.Equal(t, 30*time.Second, info.Max, "failed runs count toward timing")
	require.Equal(t, 6150*time.Millisecond, info.Mean)
	require.InDelta(t, 0.6, info.SuccessRate, 1e-9)
}

func TestMeasure_InvalidInput(t *testing.T) {
	p := New(zerolog.Nop(), &scriptedRunner{outcomes: []model.AttemptOutcome{{Success: true}}})

	_, err := p.Measure(context.Background(), tc, 0, time.Second)
	require.Error(t, err)

	_, err = p.Measure(context.Background(), model.TestCase{Name: "x"}, 1, time.Second)
	require.ErrorIs(t, err, model.ErrEmptyFullName)
}

func TestMeasure_Cancelled(t *testing.T) {
	runner := &scriptedRunner{outcomes: []model.AttemptOutcome{{Success: true}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(zerolog.Nop(), runner).Measure(ctx, tc, 3, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, runner.calls)
}

func TestEstimateAttempts(t *testing.T) {
	tests := []struct {
		name   string
		target time.Duration
		median time.Duration
		want   int
	}{
		{name: "one minute at 100ms", target: time.Minute, median: 100 * time.Millisecond, want: 545},
		{name: "zero median", target: time.Minute, median: 0, want: 0},
		{name: "negative median", target: time.Minute, median: -time.Second, want: 0},
		{name: "median longer than target", target: time.Second, median: 10 * time.Second, want: 1},
		{name: "zero target", target: 0, median: time.Second, want: 1},
		{name: "capped", target: time.Hour, median: time.Nanosecond, want: MaxEstimatedAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, EstimateAttempts(tt.target, tt.median))
		})
	}
}
