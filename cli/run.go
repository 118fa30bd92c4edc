package cli

// This file contains the run command: discover the test, optionally probe
// its timing, run the deflake session with a live dashboard and report.

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/perfgo/deflake/attempt"
	"github.com/perfgo/deflake/discovery"
	"github.com/perfgo/deflake/failurelog"
	"github.com/perfgo/deflake/model"
	"github.com/perfgo/deflake/probe"
	"github.com/perfgo/deflake/report"
	"github.com/perfgo/deflake/session"
)

const dashboardInterval = 250 * time.Millisecond

func (a *App) run(ctx *cli.Context) error {
	t, err := a.prepareTarget(ctx)
	if err != nil {
		return err
	}
	defer t.cleanup()

	executor, err := t.executor(a)
	if err != nil {
		return err
	}

	suites, err := discovery.Discover(ctx.Context, t.cfg.Binary, t.framework)
	if err != nil {
		return err
	}
	tc, err := resolveTest(suites, ctx.String("test"))
	if err != nil {
		return err
	}

	out := ctx.App.Writer

	// The first signal drains the session; once it arrived the default
	// handling is restored so a second one terminates.
	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	interrupted := context.AfterFunc(sigCtx, func() {
		stop()
		a.logger.Warn().Msg("Interrupted, waiting for running attempts to finish (interrupt again to abort)")
	})
	defer interrupted()

	if t.cfg.ProbeRuns > 0 {
		if err := a.measure(sigCtx, out, ctx.App.ErrWriter, executor, tc, t.cfg.ProbeRuns, t.cfg.AttemptTimeout, t.cfg.Duration); err != nil {
			return err
		}
	}

	sched, err := session.New(a.logger, executor, session.Config{
		TargetDuration: t.cfg.Duration,
		Workers:        t.cfg.Workers,
		AttemptTimeout: t.cfg.AttemptTimeout,
	})
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("binary", t.cfg.Binary).
		Str("command", executor.CommandLine(tc)).
		Msg("Running test case")

	stopDashboard := startDashboard(ctx.App.ErrWriter, sched)
	stats, err := sched.Run(sigCtx, tc)
	stopDashboard()
	if err != nil {
		return err
	}

	report.PrintResults(out, *stats)
	fmt.Fprintf(out, "\n%s\n", report.Summary(*stats))

	a.appendFailureLog(ctx.Context, t.cfg.FailureLog, executor.CommandLine(tc), stats)

	if path := ctx.String("profile"); path != "" {
		if err := writeProfileFile(path, stats); err != nil {
			a.logger.Warn().Err(err).Str("path", path).Msg("Failed to write profile")
		} else {
			a.logger.Info().Str("path", path).Msg("Profile written, view with: go tool pprof " + path)
		}
	}

	if stats.Flaky() {
		return cli.Exit("Flaky behavior detected!", 1)
	}
	fmt.Fprintln(out, "No flaky behavior detected.")
	return nil
}

// measure runs the timing probe, showing progress on status, and prints
// the estimate for target to w.
func (a *App) measure(ctx context.Context, w, status io.Writer, executor *attempt.Executor, tc model.TestCase, runs int, timeout, target time.Duration) error {
	p := probe.New(a.logger, executor)
	p.OnRun = func(done, total int) {
		fmt.Fprintf(status, "\rMeasuring baseline timing: %d/%d runs", done, total)
		if done == total {
			fmt.Fprintln(status)
		}
	}

	info, err := p.Measure(ctx, tc, runs, timeout)
	if err != nil {
		return err
	}

	estimate := probe.EstimateAttempts(target, info.Median)
	report.PrintEstimate(w, info.TimingSummary, info.SuccessRate, target, estimate)
	return nil
}

// startDashboard renders the session status to w until the returned
// function is called. Terminals get a line redrawn in place, anything
// else one line per second.
func startDashboard(w io.Writer, sched *session.Scheduler) func() {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(dashboardInterval)
		defer ticker.Stop()

		for tick := 1; ; tick++ {
			select {
			case <-done:
				if tty {
					fmt.Fprintf(w, "\r\033[K%s\n", report.Dashboard(sched.Snapshot()))
				}
				return
			case <-ticker.C:
				switch {
				case tty:
					fmt.Fprintf(w, "\r\033[K%s", report.Dashboard(sched.Snapshot()))
				case tick%int(time.Second/dashboardInterval) == 0:
					fmt.Fprintln(w, report.Dashboard(sched.Snapshot()))
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (a *App) appendFailureLog(ctx context.Context, path, command string, stats *model.SessionStats) {
	if path == "" || len(stats.Failures) == 0 {
		return
	}

	entry := failurelog.Session{
		Timestamp: stats.StartedAt,
		TestName:  stats.TestCase.FullName,
		Command:   command,
		Failures:  stats.Failures,
	}

	// Capture git info (non-fatal if it fails)
	if commit, branch, err := a.getGitInfo(ctx); err == nil {
		entry.Commit = commit
		entry.Branch = branch
	} else {
		a.logger.Debug().Err(err).Msg("No git information for failure log")
	}

	if err := failurelog.Append(path, entry); err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("Could not write failure log")
		return
	}

	a.logger.Info().
		Int("failures", len(stats.Failures)).
		Str("path", path).
		Msg("Failed attempts logged")
}

func writeProfileFile(path string, stats *model.SessionStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create profile file: %w", err)
	}
	if err := report.WriteProfile(f, *stats); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
