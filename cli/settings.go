package cli

// This file contains the resolution of settings shared by the commands
// from the config file, flags and positional arguments.

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/deflake/attempt"
	"github.com/perfgo/deflake/config"
	"github.com/perfgo/deflake/discovery"
	"github.com/perfgo/deflake/model"
)

// target is a validated test binary ready to be run.
type target struct {
	cfg       config.Config
	framework attempt.Framework
	// removes a binary built from --package
	cleanup func()
}

func (a *App) loadConfig(ctx *cli.Context) (config.Config, error) {
	base := config.Defaults(runtime.NumCPU())

	path := ctx.String("config")
	cfg, err := config.Load(path, base)
	if err != nil {
		// the default file is optional
		if ctx.IsSet("config") || !errors.Is(err, fs.ErrNotExist) {
			return base, err
		}
		cfg = base
	} else {
		a.logger.Debug().Str("path", path).Msg("Loaded config file")
	}

	if ctx.IsSet("framework") {
		cfg.Framework = ctx.String("framework")
	}
	if ctx.IsSet("duration") {
		cfg.Duration = ctx.Duration("duration")
	}
	if ctx.IsSet("processes") {
		cfg.Workers = ctx.Int("processes")
	}
	if ctx.IsSet("timeout") {
		cfg.AttemptTimeout = ctx.Duration("timeout")
	}
	if ctx.IsSet("probe") {
		cfg.ProbeRuns = ctx.Int("probe")
	}
	if ctx.IsSet("failure-log") {
		cfg.FailureLog = ctx.String("failure-log")
	}

	args := ctx.Args().Slice()
	if ctx.String("package") != "" {
		// the binary is built later; every argument goes to the test
		cfg.Binary = ""
		if extra := removeFirstDashDash(args); len(extra) > 0 {
			cfg.Args = extra
		}
		return cfg, nil
	}

	binary, extra := splitBinaryArgs(args)
	if binary != "" {
		cfg.Binary = binary
	}
	if len(extra) > 0 {
		cfg.Args = extra
	}

	return cfg, nil
}

// splitBinaryArgs separates the positional binary from the extra
// arguments passed to every attempt.
func splitBinaryArgs(in []string) (binary string, extra []string) {
	if len(in) == 0 {
		return "", nil
	}
	if in[0] == "--" {
		return "", in[1:]
	}
	return in[0], removeFirstDashDash(in[1:])
}

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

// prepareTarget loads the settings, builds the binary when --package is
// given and validates the result.
func (a *App) prepareTarget(ctx *cli.Context) (*target, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	t := &target{cfg: cfg, cleanup: func() {}}

	if pkg := ctx.String("package"); pkg != "" {
		buildArgs, runtimeArgs := separateTestArgs(cfg.Args)
		binary, cleanup, err := a.buildTestBinary(ctx.Context, pkg, buildArgs)
		if err != nil {
			return nil, err
		}
		t.cfg.Binary = binary
		t.cfg.Framework = string(attempt.FrameworkGoTest)
		t.cfg.Args = runtimeArgs
		t.cleanup = cleanup
	}

	if err := t.cfg.Validate(); err != nil {
		t.cleanup()
		return nil, err
	}

	t.framework, err = attempt.ParseFramework(t.cfg.Framework)
	if err != nil {
		t.cleanup()
		return nil, err
	}

	a.logger.Debug().
		Str("binary", t.cfg.Binary).
		Str("framework", string(t.framework)).
		Strs("args", t.cfg.Args).
		Msg("Resolved test binary")

	return t, nil
}

func (t *target) executor(a *App) (*attempt.Executor, error) {
	return attempt.New(t.cfg.Binary,
		attempt.WithFramework(t.framework),
		attempt.WithExtraArgs(t.cfg.Args...),
		attempt.WithLogger(a.logger),
	)
}

// resolveTest picks the test case to run from the discovered suites.
func resolveTest(suites []model.Suite, name string) (model.TestCase, error) {
	if discovery.Count(suites) == 0 {
		return model.TestCase{}, fmt.Errorf("no test cases found in binary")
	}

	if name != "" {
		return discovery.Find(suites, name)
	}

	if tc, ok := discovery.Only(suites); ok {
		return tc, nil
	}

	var names []string
collect:
	for _, s := range suites {
		for _, c := range s.Cases {
			if len(names) == 10 {
				break collect
			}
			names = append(names, c.FullName)
		}
	}
	more := ""
	if n := discovery.Count(suites); n > len(names) {
		more = fmt.Sprintf(", ... (%d total)", n)
	}
	return model.TestCase{}, fmt.Errorf("binary contains several tests, select one with --test: %s%s", strings.Join(names, ", "), more)
}
