package cli

// This file contains the discover command for listing the tests of a
// binary.

import (
	"github.com/urfave/cli/v2"

	"github.com/perfgo/deflake/discovery"
	"github.com/perfgo/deflake/report"
)

func (a *App) discover(ctx *cli.Context) error {
	t, err := a.prepareTarget(ctx)
	if err != nil {
		return err
	}
	defer t.cleanup()

	a.logger.Debug().Str("binary", t.cfg.Binary).Msg("Discovering tests")

	suites, err := discovery.Discover(ctx.Context, t.cfg.Binary, t.framework)
	if err != nil {
		return err
	}
	if discovery.Count(suites) == 0 {
		return cli.Exit("No test suites found! Make sure the binary supports test listing for its framework.", 1)
	}

	report.PrintSuites(ctx.App.Writer, suites)
	return nil
}
