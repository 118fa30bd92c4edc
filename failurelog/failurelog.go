// Package failurelog appends the failing attempts of a session to a
// human-readable, append-only log file and reads past sessions back.
package failurelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/perfgo/deflake/model"
	"github.com/perfgo/deflake/report"
)

// DefaultPath is the log file used when none is configured, relative to
// the working directory.
const DefaultPath = "failed_tests.log"

const (
	sessionRule = "================================================================================"
	failureRule = "----------------------------------------"

	sessionPrefix     = "SESSION: "
	testPrefix        = "Test: "
	commandPrefix     = "Command: "
	commitPrefix      = "Commit: "
	totalPrefix       = "Total Failed Runs: "
	failurePrefix     = "FAILURE #"
	returnCodePrefix  = "Return Code: "
	durationPrefix    = "Duration: "
	stdoutHeader      = "Standard Output:"
	stderrHeader      = "Standard Error:"
	sessionTimeLayout = time.RFC3339
)

// Session is one session's worth of failures.
type Session struct {
	Timestamp time.Time
	TestName  string
	// Shell-escaped invocation of a single attempt
	Command string
	// Git commit and branch of the working directory, if known
	Commit   string
	Branch   string
	Failures []model.AttemptOutcome
}

// Append writes s to the log at path, creating it if needed. A session
// without failures writes nothing. The file is only ever appended to.
func Append(path string, s Session) error {
	if len(s.Failures) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := Write(w, s); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write failure log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close failure log: %w", err)
	}
	return nil
}

// Write renders s in log format.
func Write(w io.Writer, s Session) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\n", sessionRule)
	fmt.Fprintf(&b, "%s%s\n", sessionPrefix, s.Timestamp.Format(sessionTimeLayout))
	if s.TestName != "" {
		fmt.Fprintf(&b, "%s%s\n", testPrefix, s.TestName)
	}
	if s.Command != "" {
		fmt.Fprintf(&b, "%s%s\n", commandPrefix, s.Command)
	}
	if s.Commit != "" {
		fmt.Fprintf(&b, "%s%s", commitPrefix, s.Commit)
		if s.Branch != "" {
			fmt.Fprintf(&b, " (%s)", s.Branch)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s%d\n", totalPrefix, len(s.Failures))
	fmt.Fprintf(&b, "%s\n\n", sessionRule)

	for i, failure := range s.Failures {
		fmt.Fprintf(&b, "%s%d\n", failurePrefix, i+1)
		fmt.Fprintf(&b, "%s\n", failureRule)
		fmt.Fprintf(&b, "%s%d\n", returnCodePrefix, failure.ReturnCode)
		fmt.Fprintf(&b, "%s%s\n", durationPrefix, report.FormatDuration(failure.Duration))

		if strings.TrimSpace(failure.Stdout) != "" {
			fmt.Fprintf(&b, "\n%s\n%s\n", stdoutHeader, failure.Stdout)
		}
		if strings.TrimSpace(failure.Stderr) != "" {
			fmt.Fprintf(&b, "\n%s\n%s\n", stderrHeader, failure.Stderr)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write failure log: %w", err)
	}
	return nil
}

// Entry summarizes one session read back from the log.
type Entry struct {
	Timestamp    time.Time
	TestName     string
	Command      string
	Commit       string
	FailureCount int
	// Return code of each recorded failure, in log order
	ReturnCodes []int
}

// Load reads every session from the log at path.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads sessions from r. Header and per-failure lines are only
// recognized where Write puts them, so captured test output that happens
// to look like a header is not mistaken for one.
func Parse(r io.Reader) ([]Entry, error) {
	var (
		entries  []Entry
		current  *Entry
		prev     string
		inHeader bool
		// lines since the last "FAILURE #" line, -1 outside a failure header
		failureLine = -1
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case prev == sessionRule && strings.HasPrefix(line, sessionPrefix):
			ts, err := time.Parse(sessionTimeLayout, strings.TrimPrefix(line, sessionPrefix))
			if err != nil {
				return nil, fmt.Errorf("invalid session timestamp %q: %w", line, err)
			}
			entries = append(entries, Entry{Timestamp: ts})
			current = &entries[len(entries)-1]
			inHeader = true
			failureLine = -1

		case inHeader && line == sessionRule:
			inHeader = false

		case inHeader:
			switch {
			case strings.HasPrefix(line, testPrefix):
				current.TestName = strings.TrimPrefix(line, testPrefix)
			case strings.HasPrefix(line, commandPrefix):
				current.Command = strings.TrimPrefix(line, commandPrefix)
			case strings.HasPrefix(line, commitPrefix):
				current.Commit = strings.TrimPrefix(line, commitPrefix)
			case strings.HasPrefix(line, totalPrefix):
				n, err := strconv.Atoi(strings.TrimPrefix(line, totalPrefix))
				if err != nil {
					return nil, fmt.Errorf("invalid failure count %q: %w", line, err)
				}
				current.FailureCount = n
			}

		case current != nil && (prev == "" || prev == sessionRule) && strings.HasPrefix(line, failurePrefix):
			failureLine = 0

		case failureLine >= 0:
			failureLine++
			if failureLine == 2 && strings.HasPrefix(line, returnCodePrefix) {
				rc, err := strconv.Atoi(strings.TrimPrefix(line, returnCodePrefix))
				if err != nil {
					return nil, fmt.Errorf("invalid return code %q: %w", line, err)
				}
				current.ReturnCodes = append(current.ReturnCodes, rc)
				failureLine = -1
			} else if failureLine > 2 {
				failureLine = -1
			}
		}

		prev = line
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read failure log: %w", err)
	}

	return entries, nil
}
