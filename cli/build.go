package cli

// This file contains test binary building functionality for running the
// tests of a Go package.

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"

	gocmd "github.com/perfgo/deflake/cli/go"
)

// buildTestBinary compiles the tests of pkg into a temporary directory.
// The returned cleanup removes the binary again.
func (a *App) buildTestBinary(ctx context.Context, pkg string, buildArgs []string) (string, func(), error) {
	packages, err := gocmd.List(ctx, pkg)
	if err != nil {
		return "", nil, err
	}
	if len(packages) != 1 {
		return "", nil, fmt.Errorf("package path %q must resolve to a single package, got %d", pkg, len(packages))
	}

	dir, err := os.MkdirTemp("", AppName+"-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create build directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			a.logger.Debug().Err(err).Str("dir", dir).Msg("Failed to clean up test binary")
		}
	}

	binary := filepath.Join(dir, path.Base(packages[0])+".test")
	if runtime.GOOS == "windows" {
		binary += ".exe"
	}

	a.logger.Info().
		Str("package", packages[0]).
		Str("output", binary).
		Msg("Building test binary")
	if len(buildArgs) > 0 {
		a.logger.Debug().Strs("build_args", buildArgs).Msg("Adding build arguments to go test -c")
	}

	if err := gocmd.BuildTest(ctx, pkg, binary, buildArgs); err != nil {
		cleanup()
		return "", nil, err
	}

	if _, err := os.Stat(binary); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("test binary not found after build (package has no tests?): %w", err)
	}

	return binary, cleanup, nil
}
