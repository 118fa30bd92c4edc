// Package report renders deflake sessions for humans: durations, counts,
// the live dashboard line, the final results and a pprof export.
package report

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatDuration renders d as "12.3ms" below a second, "1.234s" below a
// minute and "2m 5.0s" above.
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 1:
		return fmt.Sprintf("%.1fms", seconds*1000)
	case seconds < 60:
		return fmt.Sprintf("%.3fs", seconds)
	default:
		minutes := int(seconds / 60)
		return fmt.Sprintf("%dm %.1fs", minutes, seconds-float64(minutes)*60)
	}
}

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

// FormatRate renders a 0..1 ratio as a percentage with two decimals.
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// truncateLines keeps the first limit lines of s and notes how many were cut.
func truncateLines(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-limit)
}
