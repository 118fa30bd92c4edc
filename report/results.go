package report

// results.go contains the dashboard line and the final session report.

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/perfgo/deflake/aggregate"
	"github.com/perfgo/deflake/model"
)

const (
	stderrKeyLength  = 100
	maxStdoutLines   = 20
	maxStderrLines   = 10
	maxFailureDetail = 1
)

// Dashboard renders one status line for a running session.
func Dashboard(s model.SessionStats) string {
	progress := 100.0
	if s.TargetDuration > 0 {
		progress = min(100, s.Elapsed.Seconds()/s.TargetDuration.Seconds()*100)
	}
	remaining := max(0, s.TargetDuration-s.Elapsed)

	var b strings.Builder
	fmt.Fprintf(&b, "[%5.1f%%] %s / %s (%s left) | %s | attempts %s | pass %s | fail %s | %s | %.1f tests/sec",
		progress,
		FormatDuration(s.Elapsed),
		FormatDuration(s.TargetDuration),
		FormatDuration(remaining),
		s.State,
		FormatCount(s.AttemptsCompleted),
		FormatCount(s.SuccessCount),
		FormatCount(s.FailureCount),
		FormatRate(s.SuccessRate()),
		throughput(s.AttemptsCompleted, s.Elapsed),
	)

	if len(s.Durations) > 0 {
		t := aggregate.Summarize(s.Durations)
		fmt.Fprintf(&b, " | median %s (min %s, max %s)", FormatDuration(t.Median), FormatDuration(t.Min), FormatDuration(t.Max))
	}

	return b.String()
}

func throughput(attempts int, elapsed time.Duration) float64 {
	return float64(attempts) / max(elapsed.Seconds(), 0.001)
}

// PrintResults writes the final report of a session: the totals, the
// timing summary and, when the session failed, a failure analysis.
func PrintResults(w io.Writer, s model.SessionStats) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nDeflake Session Complete\n%s\n", rule, rule)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Test Case\t%s\n", s.TestCase.FullName)
	fmt.Fprintf(tw, "Processes Used\t%d\n", s.Workers)
	fmt.Fprintf(tw, "Total Attempts\t%s\n", FormatCount(s.AttemptsCompleted))
	fmt.Fprintf(tw, "Successful Runs\t%s\n", FormatCount(s.SuccessCount))
	fmt.Fprintf(tw, "Failed Runs\t%s\n", FormatCount(s.FailureCount))
	fmt.Fprintf(tw, "Success Rate\t%s\n", FormatRate(s.SuccessRate()))
	fmt.Fprintf(tw, "Total Time\t%s\n", FormatDuration(s.Elapsed))
	fmt.Fprintf(tw, "Throughput\t%.1f tests/sec\n", throughput(s.AttemptsCompleted, s.Elapsed))

	if len(s.Durations) > 0 {
		t := aggregate.Summarize(s.Durations)
		fmt.Fprintf(tw, "\t\n")
		fmt.Fprintf(tw, "Median Time\t%s\n", FormatDuration(t.Median))
		fmt.Fprintf(tw, "Mean Time\t%s\n", FormatDuration(t.Mean))
		fmt.Fprintf(tw, "Min Time\t%s\n", FormatDuration(t.Min))
		fmt.Fprintf(tw, "Max Time\t%s\n", FormatDuration(t.Max))
	}
	tw.Flush()

	if s.FailureCount == 0 {
		fmt.Fprintf(w, "\nAll %s attempts passed!\n", FormatCount(s.SuccessCount))
		return
	}

	fmt.Fprintf(w, "\nFound %s failures!\n", FormatCount(s.FailureCount))
	if len(s.Failures) == 0 {
		return
	}

	fmt.Fprintf(w, "\nFailure Analysis:\n")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Error Type\tCount\n")
	for _, g := range GroupFailures(s.Failures) {
		fmt.Fprintf(tw, "%s\t%d\n", g.Key, g.Count)
	}
	tw.Flush()

	shown := min(maxFailureDetail, len(s.Failures))
	fmt.Fprintf(w, "\nDetailed Failure Logs (showing first %d failures):\n", shown)
	for i, f := range s.Failures[:shown] {
		printFailure(w, i+1, f)
	}
	if rest := len(s.Failures) - shown; rest > 0 {
		fmt.Fprintf(w, "\n... and %s more failures.\n", FormatCount(rest))
	}
}

func printFailure(w io.Writer, n int, f model.AttemptOutcome) {
	fmt.Fprintf(w, "\n--- Failure #%d ---\n", n)
	fmt.Fprintf(w, "Return Code: %d\n", f.ReturnCode)
	fmt.Fprintf(w, "Duration: %s\n", FormatDuration(f.Duration))
	if strings.TrimSpace(f.Stdout) != "" {
		fmt.Fprintf(w, "\nStandard Output:\n%s\n", truncateLines(f.Stdout, maxStdoutLines))
	}
	if strings.TrimSpace(f.Stderr) != "" {
		fmt.Fprintf(w, "\nStandard Error:\n%s\n", truncateLines(f.Stderr, maxStderrLines))
	}
}

// FailureGroup counts failures sharing a return code and stderr prefix.
type FailureGroup struct {
	Key   string
	Count int
}

// GroupFailures groups failures by "RC:<code> - <first 100 chars of
// stderr>", in order of first occurrence.
func GroupFailures(failures []model.AttemptOutcome) []FailureGroup {
	var groups []FailureGroup
	index := make(map[string]int)

	for _, f := range failures {
		key := fmt.Sprintf("RC:%d", f.ReturnCode)
		if f.Stderr != "" {
			key += " - " + truncateRunes(f.Stderr, stderrKeyLength)
		}
		// keep the table one row per group
		key = strings.ReplaceAll(key, "\n", " ")

		if i, ok := index[key]; ok {
			groups[i].Count++
			continue
		}
		index[key] = len(groups)
		groups = append(groups, FailureGroup{Key: key, Count: 1})
	}

	return groups
}

// Summary returns a one-line verdict for the session.
func Summary(s model.SessionStats) string {
	name := s.TestCase.Name
	if name == "" {
		name = s.TestCase.FullName
	}
	if s.FailureCount == 0 {
		return fmt.Sprintf("✓ %s: %s runs, 100%% success", name, FormatCount(s.AttemptsCompleted))
	}
	return fmt.Sprintf("✗ %s: %s runs, %.1f%% success (%s failures)",
		name, FormatCount(s.AttemptsCompleted), s.SuccessRate()*100, FormatCount(s.FailureCount))
}

// PrintEstimate writes the baseline timing table and attempt estimate.
func PrintEstimate(w io.Writer, t model.TimingSummary, successRate float64, target time.Duration, estimate int) {
	fmt.Fprintf(w, "\nTiming Analysis\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Median Time\t%s\n", FormatDuration(t.Median))
	fmt.Fprintf(tw, "Mean Time\t%s\n", FormatDuration(t.Mean))
	fmt.Fprintf(tw, "Min Time\t%s\n", FormatDuration(t.Min))
	fmt.Fprintf(tw, "Max Time\t%s\n", FormatDuration(t.Max))
	fmt.Fprintf(tw, "Success Rate\t%.1f%%\n", successRate*100)
	fmt.Fprintf(tw, "Estimated Attempts\t%s\n", FormatCount(estimate))
	fmt.Fprintf(tw, "Target Duration\t%s\n", FormatDuration(target))
	tw.Flush()
}

// PrintSuites writes the discovered suites as a tree.
func PrintSuites(w io.Writer, suites []model.Suite) {
	fmt.Fprintf(w, "Discovered Tests\n")

	total := 0
	for i, suite := range suites {
		total += len(suite.Cases)

		branch, indent := "├── ", "│   "
		if i == len(suites)-1 {
			branch, indent = "└── ", "    "
		}
		fmt.Fprintf(w, "%s%s (%d tests)\n", branch, suite.Name, len(suite.Cases))

		for j, c := range suite.Cases {
			leaf := "├── "
			if j == len(suite.Cases)-1 {
				leaf = "└── "
			}

			var info []string
			if c.IsParameterized {
				info = append(info, "parameterized")
			}
			if c.IsTyped {
				info = append(info, "typed")
			}
			if len(info) > 0 {
				fmt.Fprintf(w, "%s%s%s (%s)\n", indent, leaf, c.Name, strings.Join(info, ", "))
			} else {
				fmt.Fprintf(w, "%s%s%s\n", indent, leaf, c.Name)
			}
		}
	}

	fmt.Fprintf(w, "\nDiscovery Summary:\n")
	fmt.Fprintf(w, "   Test Suites: %d\n", len(suites))
	fmt.Fprintf(w, "   Total Tests: %d\n", total)
}
