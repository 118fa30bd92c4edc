package cli

// This file contains the log command for displaying past sessions from the
// failure log.

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/deflake/failurelog"
	"github.com/perfgo/deflake/report"
)

func (a *App) log(ctx *cli.Context) error {
	path := ctx.String("path")
	filterTest := ctx.String("test")
	limit := ctx.Int("limit")
	out := ctx.App.Writer

	entries, err := failurelog.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(out, "No failure log found at %s\n", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load failure log: %w", err)
	}

	printEntries(out, path, filterEntries(entries, filterTest, limit), len(entries))
	return nil
}

// filterEntries keeps the entries whose test name contains filterTest,
// newest first, at most limit of them (0 for all).
func filterEntries(entries []failurelog.Entry, filterTest string, limit int) []failurelog.Entry {
	var filtered []failurelog.Entry
	for _, entry := range entries {
		if filterTest == "" || strings.Contains(entry.TestName, filterTest) {
			filtered = append(filtered, entry)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered
}

func printEntries(w io.Writer, path string, entries []failurelog.Entry, total int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching sessions found")
		return
	}

	fmt.Fprintf(w, "\n=== Failure log (%d sessions) ===\n\n", total)

	for _, entry := range entries {
		timestamp := entry.Timestamp.Local().Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "✗  %s  %s  failures=%s\n", timestamp, entry.TestName, report.FormatCount(entry.FailureCount))

		if codes := returnCodeCounts(entry.ReturnCodes); codes != "" {
			fmt.Fprintf(w, "   Return codes: %s\n", codes)
		}
		if entry.Command != "" {
			fmt.Fprintf(w, "   Command: %s\n", entry.Command)
		}
		if entry.Commit != "" {
			commit := entry.Commit
			// "<sha> (branch)" -> "<short sha> (branch)"
			if sha, rest, ok := strings.Cut(commit, " "); ok && len(sha) > 8 {
				commit = sha[:8] + " " + rest
			} else if len(commit) > 8 && !ok {
				commit = commit[:8]
			}
			fmt.Fprintf(w, "   Commit: %s\n", commit)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Full output: %s\n", path)
}

// returnCodeCounts renders "1 x3, -1 x1" in order of first occurrence.
func returnCodeCounts(codes []int) string {
	var order []int
	counts := make(map[int]int)
	for _, rc := range codes {
		if counts[rc] == 0 {
			order = append(order, rc)
		}
		counts[rc]++
	}

	parts := make([]string, len(order))
	for i, rc := range order {
		parts[i] = fmt.Sprintf("%d x%d", rc, counts[rc])
	}
	return strings.Join(parts, ", ")
}
