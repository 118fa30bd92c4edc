package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/perfgo/deflake/config"
	"github.com/perfgo/deflake/failurelog"
	"github.com/perfgo/deflake/probe"
)

const AppName = "deflake"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run a single test case over and over to expose flaky behavior",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "verbose",
					Aliases: []string{"v"},
					Usage:   "Enable verbose (debug) logging",
					EnvVars: []string{"DEFLAKE_VERBOSE"},
				},
				&cli.StringFlag{
					Name:    "config",
					Usage:   "YAML file with default settings",
					Value:   config.DefaultPath,
					EnvVars: []string{"DEFLAKE_CONFIG"},
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}

	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run a test case repeatedly across parallel processes",
		ArgsUsage: "[BINARY] [-- EXTRA_ARGS...]",
		Action:    app.run,
		Flags: append(binaryFlags(),
			testFlag(),
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "Wall-clock budget for starting new attempts",
				Value:   config.DefaultDuration,
				EnvVars: []string{"DEFLAKE_DURATION"},
			},
			&cli.IntFlag{
				Name:    "processes",
				Aliases: []string{"p"},
				Usage:   "Number of parallel processes (default: half of CPU cores)",
				EnvVars: []string{"DEFLAKE_PROCESSES"},
			},
			timeoutFlag(),
			&cli.IntFlag{
				Name:    "probe",
				Usage:   "Measure baseline timing with N sequential runs before the session",
				EnvVars: []string{"DEFLAKE_PROBE"},
			},
			&cli.StringFlag{
				Name:    "failure-log",
				Usage:   "Append failed attempts to this file (empty disables)",
				Value:   failurelog.DefaultPath,
				EnvVars: []string{"DEFLAKE_FAILURE_LOG"},
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Write a pprof profile of attempt outcomes to this file",
			},
		),
		Description: `Runs one test case in parallel processes until the duration is up, then
waits for the running attempts to finish and prints a report.

Flags come before the binary; arguments after -- are passed to every attempt.

Examples:
  deflake run --test BasicTests.Flaky ./build/basic_tests
  deflake run --test Flaky -d 1m -p 8 ./build/basic_tests -- --gtest_shuffle
  deflake run --package ./cache --test TestEvict -- -race -v

Exit status is 1 when at least one attempt failed.`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "probe",
		Usage:     "Measure the timing of a test case and estimate attempts for a duration",
		ArgsUsage: "[BINARY] [-- EXTRA_ARGS...]",
		Action:    app.probe,
		Flags: append(binaryFlags(),
			testFlag(),
			&cli.IntFlag{
				Name:    "runs",
				Aliases: []string{"n"},
				Usage:   "Number of sequential runs",
				Value:   probe.DefaultRuns,
			},
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "Duration to estimate attempts for",
				Value:   config.DefaultDuration,
				EnvVars: []string{"DEFLAKE_DURATION"},
			},
			timeoutFlag(),
		),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "discover",
		Usage:     "List the test cases of a test binary",
		ArgsUsage: "[BINARY]",
		Action:    app.discover,
		Flags:     binaryFlags(),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "log",
		Usage:  "List sessions recorded in the failure log",
		Action: app.log,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Usage:   "Failure log to read",
				Value:   failurelog.DefaultPath,
				EnvVars: []string{"DEFLAKE_FAILURE_LOG"},
			},
			&cli.StringFlag{
				Name:  "test",
				Usage: "Only show sessions of tests containing this string",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results",
				Value:   20,
			},
		},
	})
	return app
}

// binaryFlags select and, for Go packages, build the test binary.
func binaryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "framework",
			Aliases: []string{"f"},
			Usage:   "Test framework of the binary (gtest, gotest)",
			EnvVars: []string{"DEFLAKE_FRAMEWORK"},
		},
		&cli.StringFlag{
			Name:  "package",
			Usage: "Build the test binary of this Go package with 'go test -c' (implies --framework gotest)",
		},
	}
}

func testFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "test",
		Aliases: []string{"t"},
		Usage:   "Test case to run, full (Suite.Case) or short name; optional when the binary has a single test",
	}
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "timeout",
		Usage:   "Timeout of a single attempt (0 disables)",
		Value:   probe.DefaultTimeout,
		EnvVars: []string{"DEFLAKE_TIMEOUT"},
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:min(8, len(commit))], date)
	}
}
