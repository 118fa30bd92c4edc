package gocmd

// go.go runs the go tool to resolve packages and compile test binaries.

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// List runs 'go list' on a package path and returns the import paths it
// resolves to. Errors carry the first line of the go tool's message.
func List(ctx context.Context, path string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "go", "list", path)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())

		switch {
		case strings.Contains(errMsg, "no Go files in"):
			return nil, fmt.Errorf("invalid package path %q: directory contains no Go files", path)
		case strings.Contains(errMsg, "is not in std"),
			strings.Contains(errMsg, "is not in GOROOT"),
			strings.Contains(errMsg, "cannot find package"):
			return nil, fmt.Errorf("invalid package path %q: package not found", path)
		}

		if first, _, _ := strings.Cut(errMsg, "\n"); first != "" {
			return nil, fmt.Errorf("invalid package path %q: %s", path, first)
		}
		return nil, fmt.Errorf("invalid package path %q: %w", path, err)
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		return []string{}, nil
	}
	return strings.Split(output, "\n"), nil
}

// BuildTest compiles the tests of pkg into output with 'go test -c'.
// flags are passed to the go tool before the package path.
func BuildTest(ctx context.Context, pkg, output string, flags []string) error {
	args := []string{"test", "-c", "-o", output}
	args = append(args, flags...)
	args = append(args, pkg)

	cmd := exec.CommandContext(ctx, "go", args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to build test binary: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
