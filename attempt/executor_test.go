package attempt

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/perfgo/deflake/model"
)

var testCase = model.TestCase{Name: "Case", FullName: "Suite.Case", SuiteName: "Suite"}

// writeScript creates an executable shell script standing in for a test binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script test binaries need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake_test")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestNew(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	_, err = New(t.TempDir())
	require.ErrorContains(t, err, "not a regular file")

	e, err := New(writeScript(t, "exit 0"))
	require.NoError(t, err)
	require.Equal(t, FrameworkGTest, e.Framework())
}

func TestRun_Success(t *testing.T) {
	e, err := New(writeScript(t, `echo "$@"`))
	require.NoError(t, err)

	out := e.Run(context.Background(), testCase, 10*time.Second)

	require.True(t, out.Success)
	require.Equal(t, 0, out.ReturnCode)
	require.Equal(t, "--gtest_filter=Suite.Case --gtest_brief=yes\n", out.Stdout)
	require.Greater(t, out.Duration, time.Duration(0))
}

func TestRun_Failure(t *testing.T) {
	e, err := New(writeScript(t, "echo out\necho err >&2\nexit 3"))
	require.NoError(t, err)

	out := e.Run(context.Background(), testCase, 0)

	require.False(t, out.Success)
	require.Equal(t, 3, out.ReturnCode)
	require.Equal(t, "out\n", out.Stdout)
	require.Equal(t, "err\n", out.Stderr)
}

func TestRun_Timeout(t *testing.T) {
	e, err := New(writeScript(t, "exec sleep 5"))
	require.NoError(t, err)

	timeout := 200 * time.Millisecond
	out := e.Run(context.Background(), testCase, timeout)

	require.False(t, out.Success)
	require.True(t, out.TimedOut())
	require.Equal(t, model.ReturnCodeTimeout, out.ReturnCode)
	require.Empty(t, out.Stdout)
	require.Contains(t, out.Stderr, "200ms")
	require.GreaterOrEqual(t, out.Duration, timeout)
	require.Less(t, out.Duration, timeout+time.Second)
}

func TestRun_LaunchError(t *testing.T) {
	path := writeScript(t, "exit 0")
	e, err := New(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	out := e.Run(context.Background(), testCase, time.Second)

	require.False(t, out.Success)
	require.Equal(t, model.ReturnCodeExecError, out.ReturnCode)
	require.Contains(t, out.Stderr, "Error running test:")
	require.Empty(t, out.Stdout)
}

func TestRun_KilledBySignal(t *testing.T) {
	e, err := New(writeScript(t, "kill -KILL $$"))
	require.NoError(t, err)

	out := e.Run(context.Background(), testCase, 10*time.Second)

	require.False(t, out.Success)
	require.Equal(t, 128+9, out.ReturnCode)
	require.Contains(t, out.Stderr, "terminated by signal")
}

func TestRun_ExtraArgsAndGoTest(t *testing.T) {
	e, err := New(writeScript(t, `echo "$@"`), WithFramework(FrameworkGoTest), WithExtraArgs("-v", "-timeout=5s"))
	require.NoError(t, err)

	out := e.Run(context.Background(), model.TestCase{Name: "TestFoo", FullName: "TestFoo"}, 10*time.Second)

	require.True(t, out.Success)
	require.Equal(t, "-test.run=^TestFoo$ -test.count=1 -test.v -test.timeout=5s\n", out.Stdout)
}
