// Package discovery lists the test cases a test binary contains.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/perfgo/deflake/attempt"
	"github.com/perfgo/deflake/model"
)

var (
	// ErrNotFound is returned by Find when no case matches.
	ErrNotFound = errors.New("test case not found")
	// ErrAmbiguous is returned by Find when a short name matches several cases.
	ErrAmbiguous = errors.New("test name is ambiguous")
)

const (
	typeParamMarker = "# TypeParam = "
	getParamMarker  = "# GetParam() = "
)

// Discover asks binary for its test list and parses it.
func Discover(ctx context.Context, binary string, framework attempt.Framework) ([]model.Suite, error) {
	var args []string
	switch framework {
	case attempt.FrameworkGTest:
		args = []string{"--gtest_list_tests"}
	case attempt.FrameworkGoTest:
		args = []string{"-test.list=.*"}
	default:
		return nil, fmt.Errorf("unsupported framework %q", framework)
	}

	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			// first line is enough to tell what went wrong
			msg = strings.SplitN(msg, "\n", 2)[0]
			return nil, fmt.Errorf("failed to list tests of %s: %w (stderr: %s)", binary, err, msg)
		}
		return nil, fmt.Errorf("failed to list tests of %s: %w", binary, err)
	}

	if framework == attempt.FrameworkGoTest {
		return ParseGoTestList(&stdout, packageName(binary))
	}
	return ParseGTestList(&stdout)
}

// ParseGTestList parses the output of --gtest_list_tests. A line ending in
// "." opens a suite, indented lines are its cases. Suites keep the order
// the binary printed them in.
func ParseGTestList(r io.Reader) ([]model.Suite, error) {
	var (
		suites   []model.Suite
		typeInfo string
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		line, comment := splitComment(raw)

		if !strings.HasPrefix(raw, " ") && strings.HasSuffix(line, ".") {
			typeInfo = ""
			if strings.HasPrefix(comment, typeParamMarker) {
				typeInfo = strings.TrimPrefix(comment, typeParamMarker)
			}
			suites = append(suites, model.Suite{Name: strings.TrimSuffix(line, ".")})
			continue
		}

		if len(suites) == 0 {
			// banner lines printed before the first suite
			continue
		}

		suite := &suites[len(suites)-1]
		tc := model.TestCase{
			Name:      line,
			FullName:  suite.Name + "." + line,
			SuiteName: suite.Name,
			IsTyped:   typeInfo != "",
			TypeInfo:  typeInfo,
		}
		if strings.HasPrefix(comment, getParamMarker) {
			tc.IsParameterized = true
			tc.ParameterValue = strings.TrimPrefix(comment, getParamMarker)
		}
		suite.Cases = append(suite.Cases, tc)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test list: %w", err)
	}
	return suites, nil
}

// splitComment separates a listing line from its trailing "# ..." note.
func splitComment(raw string) (line, comment string) {
	if i := strings.Index(raw, "#"); i >= 0 {
		return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i:])
	}
	return strings.TrimSpace(raw), ""
}

// ParseGoTestList parses the output of -test.list into a single suite
// named suiteName. The trailing "ok" summary line is skipped.
func ParseGoTestList(r io.Reader, suiteName string) ([]model.Suite, error) {
	suite := model.Suite{Name: suiteName}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "ok ") || name == "ok" {
			continue
		}
		suite.Cases = append(suite.Cases, model.TestCase{
			Name:      name,
			FullName:  name,
			SuiteName: suiteName,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test list: %w", err)
	}
	if len(suite.Cases) == 0 {
		return nil, nil
	}
	return []model.Suite{suite}, nil
}

// packageName derives a suite name from a Go test binary path
// ("/tmp/cache.test" -> "cache").
func packageName(binary string) string {
	name := filepath.Base(binary)
	name = strings.TrimSuffix(name, ".exe")
	return strings.TrimSuffix(name, ".test")
}

// Count returns the number of test cases across suites.
func Count(suites []model.Suite) int {
	n := 0
	for _, s := range suites {
		n += len(s.Cases)
	}
	return n
}

// Find resolves name against the discovered suites. An exact full name
// wins; otherwise name must match the short name of exactly one case.
func Find(suites []model.Suite, name string) (model.TestCase, error) {
	var matches []model.TestCase
	for _, s := range suites {
		for _, c := range s.Cases {
			if c.FullName == name {
				return c, nil
			}
			if c.Name == name {
				matches = append(matches, c)
			}
		}
	}

	switch len(matches) {
	case 0:
		return model.TestCase{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	case 1:
		return matches[0], nil
	default:
		full := make([]string, len(matches))
		for i, m := range matches {
			full[i] = m.FullName
		}
		return model.TestCase{}, fmt.Errorf("%w: %q matches %s", ErrAmbiguous, name, strings.Join(full, ", "))
	}
}

// Only returns the single case of suites, if there is exactly one.
func Only(suites []model.Suite) (model.TestCase, bool) {
	if Count(suites) != 1 {
		return model.TestCase{}, false
	}
	for _, s := range suites {
		if len(s.Cases) == 1 {
			return s.Cases[0], true
		}
	}
	return model.TestCase{}, false
}
