package attempt

// args.go contains utilities for building the command line of a single
// attempt for each supported test framework.

import (
	"fmt"
	"regexp"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/perfgo/deflake/model"
)

// Framework selects the flag dialect of the test binary.
type Framework string

const (
	// FrameworkGTest drives GoogleTest binaries.
	FrameworkGTest Framework = "gtest"
	// FrameworkGoTest drives binaries built with `go test -c`.
	FrameworkGoTest Framework = "gotest"
)

// ParseFramework validates a framework name. An empty name selects gtest.
func ParseFramework(name string) (Framework, error) {
	switch Framework(strings.ToLower(strings.TrimSpace(name))) {
	case "", FrameworkGTest:
		return FrameworkGTest, nil
	case FrameworkGoTest:
		return FrameworkGoTest, nil
	}
	return "", fmt.Errorf("unknown test framework %q (supported: %s, %s)", name, FrameworkGTest, FrameworkGoTest)
}

// BuildArgs returns the arguments that run exactly one test case with
// minimal output, followed by any extra arguments.
func BuildArgs(framework Framework, tc model.TestCase, extra []string) []string {
	var args []string

	switch framework {
	case FrameworkGoTest:
		args = []string{
			fmt.Sprintf("-test.run=%s", goTestRunPattern(tc.FullName)),
			"-test.count=1",
		}
		extra = TransformGoTestFlags(extra)
	default:
		args = []string{
			fmt.Sprintf("--gtest_filter=%s", tc.FullName),
			"--gtest_brief=yes",
		}
	}

	return append(args, extra...)
}

// goTestRunPattern anchors every level of a subtest path so that
// "TestA/case_1" does not also match "TestAB" or "TestA/case_10".
func goTestRunPattern(fullName string) string {
	parts := strings.Split(fullName, "/")
	for i, p := range parts {
		parts[i] = "^" + regexp.QuoteMeta(p) + "$"
	}
	return strings.Join(parts, "/")
}

// TransformGoTestFlags rewrites short go test flags (e.g. -v,
// -timeout=10s) into the -test. form a compiled test binary understands.
// Non-flag values are kept as they are.
func TransformGoTestFlags(args []string) []string {
	transformed := make([]string, 0, len(args))

	for _, arg := range args {
		// Already in binary form, or a long option meant for something else
		if strings.HasPrefix(arg, "-test.") || strings.HasPrefix(arg, "--") || !strings.HasPrefix(arg, "-") {
			transformed = append(transformed, arg)
			continue
		}

		if idx := strings.Index(arg, "="); idx > 0 {
			transformed = append(transformed, fmt.Sprintf("-test.%s%s", arg[1:idx], arg[idx:]))
		} else {
			transformed = append(transformed, fmt.Sprintf("-test.%s", arg[1:]))
		}
	}

	return transformed
}

// CommandLine joins binary and args with shell escaping, for logs and the
// failure log.
func CommandLine(binary string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellescape.Quote(binary))

	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}

	return strings.Join(parts, " ")
}
