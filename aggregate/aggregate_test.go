package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/perfgo/deflake/model"
)

func outcomes() []model.AttemptOutcome {
	return []model.AttemptOutcome{
		{Success: true, Duration: 5 * time.Millisecond},
		{Success: false, Duration: 7 * time.Millisecond, ReturnCode: 1, Stderr: "boom"},
		{Success: true, Duration: 3 * time.Millisecond},
		{Success: false, Duration: 30 * time.Second, ReturnCode: model.ReturnCodeTimeout},
		{Success: true, Duration: 4 * time.Millisecond},
	}
}

func TestFold(t *testing.T) {
	stats := FoldAll(model.SessionStats{}, outcomes()...)

	require.NoError(t, Consistent(stats))
	require.Equal(t, 5, stats.AttemptsCompleted)
	require.Equal(t, 3, stats.SuccessCount)
	require.Equal(t, 2, stats.FailureCount)
	require.Len(t, stats.Failures, 2)
	require.Equal(t, 1, stats.Failures[0].ReturnCode)
	require.Equal(t, model.ReturnCodeTimeout, stats.Failures[1].ReturnCode)
	require.Equal(t, []time.Duration{
		5 * time.Millisecond, 7 * time.Millisecond, 3 * time.Millisecond, 30 * time.Second, 4 * time.Millisecond,
	}, stats.Durations)
}

func TestFold_BatchingDoesNotMatter(t *testing.T) {
	all := outcomes()
	whole := FoldAll(model.SessionStats{}, all...)

	for split := 0; split <= len(all); split++ {
		first := FoldAll(model.SessionStats{}, all[:split]...)
		batched := FoldAll(first, all[split:]...)
		require.Equal(t, whole, batched, "split at %d", split)
	}
}

func TestFold_PriorSnapshotUnchanged(t *testing.T) {
	stats := FoldAll(model.SessionStats{}, outcomes()[:2]...)
	snapshot := stats

	stats = Fold(stats, model.AttemptOutcome{Success: true, Duration: time.Second})

	require.Equal(t, 2, snapshot.AttemptsCompleted)
	require.Len(t, snapshot.Durations, 2)
	require.NoError(t, Consistent(snapshot))
	require.Equal(t, 3, stats.AttemptsCompleted)
}

func TestSummarize(t *testing.T) {
	ms := func(v ...int) []time.Duration {
		out := make([]time.Duration, len(v))
		for i := range v {
			out[i] = time.Duration(v[i]) * time.Millisecond
		}
		return out
	}

	tests := []struct {
		name string
		in   []time.Duration
		want model.TimingSummary
	}{
		{
			name: "empty",
			in:   nil,
			want: model.TimingSummary{},
		},
		{
			name: "odd count",
			in:   ms(5, 1, 3, 2, 4),
			want: model.TimingSummary{Count: 5, Median: 3 * time.Millisecond, Mean: 3 * time.Millisecond, Min: time.Millisecond, Max: 5 * time.Millisecond},
		},
		{
			name: "even count",
			in:   ms(4, 1, 3, 2),
			want: model.TimingSummary{Count: 4, Median: 2500 * time.Microsecond, Mean: 2500 * time.Microsecond, Min: time.Millisecond, Max: 4 * time.Millisecond},
		},
		{
			name: "single",
			in:   ms(7),
			want: model.TimingSummary{Count: 1, Median: 7 * time.Millisecond, Mean: 7 * time.Millisecond, Min: 7 * time.Millisecond, Max: 7 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Summarize(tt.in))
		})
	}
}

func TestSummarize_DoesNotReorderInput(t *testing.T) {
	in := []time.Duration{3, 1, 2}
	_ = Summarize(in)
	require.Equal(t, []time.Duration{3, 1, 2}, in)
}

func TestSummarize_IncrementalMatchesFromScratch(t *testing.T) {
	var stats model.SessionStats
	for _, o := range outcomes() {
		stats = Fold(stats, o)
		require.Equal(t, Summarize(append([]time.Duration(nil), stats.Durations...)), Summarize(stats.Durations))
	}
}

func TestSuccessRate(t *testing.T) {
	require.Equal(t, 0.0, SuccessRate(0, 0))
	require.Equal(t, 0.5, SuccessRate(1, 2))
	require.Equal(t, 1.0, SuccessRate(3, 3))
}

func TestConsistent(t *testing.T) {
	require.Error(t, Consistent(model.SessionStats{AttemptsCompleted: 1}))
	require.Error(t, Consistent(model.SessionStats{AttemptsCompleted: 1, SuccessCount: 1}))
	require.NoError(t, Consistent(model.SessionStats{}))
}
