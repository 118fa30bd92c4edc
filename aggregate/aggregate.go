// Package aggregate folds attempt outcomes into session statistics.
//
// Everything here is pure: no I/O, no locking, no clocks. The scheduler
// owns the only mutation path and serializes calls to Fold.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/perfgo/deflake/model"
)

// Fold returns stats with o folded in.
//
// The durations and failures are appended, so a value of stats captured
// before the call still sees exactly its own prefix. Fold must not be
// applied twice to the same input value; the result replaces it.
func Fold(stats model.SessionStats, o model.AttemptOutcome) model.SessionStats {
	stats.AttemptsCompleted++
	stats.Durations = append(stats.Durations, o.Duration)
	if o.Success {
		stats.SuccessCount++
	} else {
		stats.FailureCount++
		stats.Failures = append(stats.Failures, o)
	}
	return stats
}

// FoldAll folds outcomes into stats in order.
func FoldAll(stats model.SessionStats, outcomes ...model.AttemptOutcome) model.SessionStats {
	for _, o := range outcomes {
		stats = Fold(stats, o)
	}
	return stats
}

// SuccessRate returns success/total, or 0 when total is zero.
func SuccessRate(success, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(success) / float64(total)
}

// Summarize computes median, mean, min and max over durations. The input
// is not modified. An empty input yields a zero summary.
func Summarize(durations []time.Duration) model.TimingSummary {
	n := len(durations)
	if n == 0 {
		return model.TimingSummary{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total float64
	for _, d := range sorted {
		total += float64(d)
	}

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return model.TimingSummary{
		Count:  n,
		Median: median,
		Mean:   time.Duration(total / float64(n)),
		Min:    sorted[0],
		Max:    sorted[n-1],
	}
}

// Consistent verifies the counter invariants of stats.
func Consistent(stats model.SessionStats) error {
	if stats.AttemptsCompleted != stats.SuccessCount+stats.FailureCount {
		return fmt.Errorf("attempts completed %d != successes %d + failures %d",
			stats.AttemptsCompleted, stats.SuccessCount, stats.FailureCount)
	}
	if len(stats.Durations) != stats.AttemptsCompleted {
		return fmt.Errorf("recorded %d durations for %d completed attempts",
			len(stats.Durations), stats.AttemptsCompleted)
	}
	if len(stats.Failures) > stats.FailureCount {
		return fmt.Errorf("recorded %d failing outcomes for %d failures",
			len(stats.Failures), stats.FailureCount)
	}
	return nil
}
