package cli

// This file contains the probe command, which measures a test's timing
// without starting a session.

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/deflake/discovery"
)

func (a *App) probe(ctx *cli.Context) error {
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

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.measure(sigCtx, ctx.App.Writer, ctx.App.ErrWriter, executor, tc, ctx.Int("runs"), t.cfg.AttemptTimeout, t.cfg.Duration)
}
