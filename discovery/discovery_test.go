package discovery

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perfgo/deflake/attempt"
	"github.com/perfgo/deflake/model"
)

func TestParseGTestList(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []model.Suite
	}{
		{
			name:   "empty",
			input:  "",
			expect: nil,
		},
		{
			name: "basic suites",
			input: `
BasicTests.
  FastTest
  SlowTest
MathTests.
  Addition
`,
			expect: []model.Suite{
				{Name: "BasicTests", Cases: []model.TestCase{
					{Name: "FastTest", FullName: "BasicTests.FastTest", SuiteName: "BasicTests"},
					{Name: "SlowTest", FullName: "BasicTests.SlowTest", SuiteName: "BasicTests"},
				}},
				{Name: "MathTests", Cases: []model.TestCase{
					{Name: "Addition", FullName: "MathTests.Addition", SuiteName: "MathTests"},
				}},
			},
		},
		{
			name: "parameterized",
			input: `EvenNumbers/ParameterizedTest.
  IsEven/0  # GetParam() = 2
  IsEven/1  # GetParam() = 4
`,
			expect: []model.Suite{
				{Name: "EvenNumbers/ParameterizedTest", Cases: []model.TestCase{
					{Name: "IsEven/0", FullName: "EvenNumbers/ParameterizedTest.IsEven/0", SuiteName: "EvenNumbers/ParameterizedTest", IsParameterized: true, ParameterValue: "2"},
					{Name: "IsEven/1", FullName: "EvenNumbers/ParameterizedTest.IsEven/1", SuiteName: "EvenNumbers/ParameterizedTest", IsParameterized: true, ParameterValue: "4"},
				}},
			},
		},
		{
			name: "typed",
			input: `TypedTest/0.  # TypeParam = int
  DefaultConstruction
TypedTest/1.  # TypeParam = float
  DefaultConstruction
Plain.
  Case
`,
			expect: []model.Suite{
				{Name: "TypedTest/0", Cases: []model.TestCase{
					{Name: "DefaultConstruction", FullName: "TypedTest/0.DefaultConstruction", SuiteName: "TypedTest/0", IsTyped: true, TypeInfo: "int"},
				}},
				{Name: "TypedTest/1", Cases: []model.TestCase{
					{Name: "DefaultConstruction", FullName: "TypedTest/1.DefaultConstruction", SuiteName: "TypedTest/1", IsTyped: true, TypeInfo: "float"},
				}},
				{Name: "Plain", Cases: []model.TestCase{
					{Name: "Case", FullName: "Plain.Case", SuiteName: "Plain"},
				}},
			},
		},
		{
			name:  "banner before first suite",
			input: "Running main() from gtest_main.cc\nA.\n  B\n",
			expect: []model.Suite{
				{Name: "A", Cases: []model.TestCase{{Name: "B", FullName: "A.B", SuiteName: "A"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGTestList(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ParseGTestList() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expect) {
				t.Errorf("ParseGTestList() = %#v, want %#v", got, tt.expect)
			}
		})
	}
}

func TestParseGoTestList(t *testing.T) {
	suites, err := ParseGoTestList(strings.NewReader("TestCache\nTestEvict\nExampleCache\nok  \tgithub.com/acme/cache\t0.002s\n"), "cache")
	require.NoError(t, err)
	require.Len(t, suites, 1)
	require.Equal(t, "cache", suites[0].Name)
	require.Equal(t, []model.TestCase{
		{Name: "TestCache", FullName: "TestCache", SuiteName: "cache"},
		{Name: "TestEvict", FullName: "TestEvict", SuiteName: "cache"},
		{Name: "ExampleCache", FullName: "ExampleCache", SuiteName: "cache"},
	}, suites[0].Cases)

	suites, err = ParseGoTestList(strings.NewReader("\n"), "cache")
	require.NoError(t, err)
	require.Empty(t, suites)
}

func TestPackageName(t *testing.T) {
	require.Equal(t, "cache", packageName("/tmp/build/cache.test"))
	require.Equal(t, "cache", packageName("cache.test.exe"))
	require.Equal(t, "basic_tests", packageName("./basic_tests"))
}

func TestFind(t *testing.T) {
	suites := []model.Suite{
		{Name: "A", Cases: []model.TestCase{
			{Name: "Same", FullName: "A.Same", SuiteName: "A"},
			{Name: "Unique", FullName: "A.Unique", SuiteName: "A"},
		}},
		{Name: "B", Cases: []model.TestCase{
			{Name: "Same", FullName: "B.Same", SuiteName: "B"},
		}},
	}

	tc, err := Find(suites, "B.Same")
	require.NoError(t, err)
	require.Equal(t, "B.Same", tc.FullName)

	tc, err = Find(suites, "Unique")
	require.NoError(t, err)
	require.Equal(t, "A.Unique", tc.FullName)

	_, err = Find(suites, "Same")
	require.ErrorIs(t, err, ErrAmbiguous)
	require.ErrorContains(t, err, "A.Same, B.Same")

	_, err = Find(suites, "Missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOnly(t *testing.T) {
	one := []model.Suite{{Name: "Empty"}, {Name: "A", Cases: []model.TestCase{{Name: "B", FullName: "A.B"}}}}
	tc, ok := Only(one)
	require.True(t, ok)
	require.Equal(t, "A.B", tc.FullName)

	_, ok = Only(append(one, model.Suite{Name: "C", Cases: []model.TestCase{{Name: "D", FullName: "C.D"}}}))
	require.False(t, ok)
}

func fakeBinary(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script test binaries need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestDiscover(t *testing.T) {
	gtest := fakeBinary(t, "basic_tests", `[ "$1" = "--gtest_list_tests" ] || exit 2
printf 'BasicTests.\n  Fast\n  Flaky\n'`)

	suites, err := Discover(context.Background(), gtest, attempt.FrameworkGTest)
	require.NoError(t, err)
	require.Equal(t, 2, Count(suites))
	require.Equal(t, "BasicTests.Flaky", suites[0].Cases[1].FullName)

	gotest := fakeBinary(t, "cache.test", `[ "$1" = "-test.list=.*" ] || exit 2
printf 'TestCache\nok\n'`)

	suites, err = Discover(context.Background(), gotest, attempt.FrameworkGoTest)
	require.NoError(t, err)
	require.Equal(t, "cache", suites[0].Name)
	require.Equal(t, "TestCache", suites[0].Cases[0].FullName)
}

func TestDiscover_Failure(t *testing.T) {
	broken := fakeBinary(t, "broken", `echo "cannot load shared library" >&2; exit 127`)

	_, err := Discover(context.Background(), broken, attempt.FrameworkGTest)
	require.ErrorContains(t, err, "cannot load shared library")

	_, err = Discover(context.Background(), broken, attempt.Framework("catch2"))
	require.ErrorContains(t, err, "unsupported framework")
}
