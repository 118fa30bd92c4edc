package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

func TestDefaultWorkers(t *testing.T) {
	tests := []struct {
		cpus int
		want int
	}{
		{cpus: 0, want: 1},
		{cpus: 1, want: 1},
		{cpus: 2, want: 1},
		{cpus: 8, want: 4},
		{cpus: 9, want: 4},
	}

	for _, tt := range tests {
		if got := DefaultWorkers(tt.cpus); got != tt.want {
			t.Errorf("DefaultWorkers(%d) = %d, want %d", tt.cpus, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, DefaultPath, `binary: ./build/basic_tests
duration: 2m
workers: 6
attempt_timeout: 45s
args: ["--gtest_shuffle"]
`, 0o644)

	cfg, err := Load(path, Defaults(8))
	require.NoError(t, err)

	require.Equal(t, Config{
		Binary:         "./build/basic_tests",
		Framework:      "gtest",
		Duration:       2 * time.Minute,
		Workers:        6,
		AttemptTimeout: 45 * time.Second,
		FailureLog:     "failed_tests.log",
		Args:           []string{"--gtest_shuffle"},
	}, cfg)
}

func TestLoad_Empty(t *testing.T) {
	path := writeFile(t, DefaultPath, "", 0o644)

	cfg, err := Load(path, Defaults(4))
	require.NoError(t, err)
	require.Equal(t, Defaults(4), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"), Defaults(4))
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = Load(writeFile(t, "bad.yaml", "workers: [1, 2", 0o644), Defaults(4))
	require.ErrorContains(t, err, "parsing config")

	_, err = Load(writeFile(t, "typo.yaml", "wokers: 3\n", 0o644), Defaults(4))
	require.ErrorContains(t, err, "wokers")
}

func TestValidate(t *testing.T) {
	binary := writeFile(t, "basic_tests", "#!/bin/sh\n", 0o755)
	valid := Defaults(4)
	valid.Binary = binary
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
		msg    string
	}{
		{name: "no binary", modify: func(c *Config) { c.Binary = "" }, msg: "no test binary"},
		{name: "missing binary", modify: func(c *Config) { c.Binary = binary + ".missing" }, msg: "not found"},
		{name: "directory", modify: func(c *Config) { c.Binary = filepath.Dir(binary) }, msg: "not a regular file"},
		{name: "framework", modify: func(c *Config) { c.Framework = "catch2" }, msg: "catch2"},
		{name: "workers", modify: func(c *Config) { c.Workers = 0 }, msg: "processes must be at least 1"},
		{name: "duration", modify: func(c *Config) { c.Duration = -time.Second }, msg: "duration"},
		{name: "timeout", modify: func(c *Config) { c.AttemptTimeout = -time.Second }, msg: "timeout"},
		{name: "probe runs", modify: func(c *Config) { c.ProbeRuns = -1 }, msg: "probe runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.modify(&c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			require.ErrorContains(t, err, tt.msg)
		})
	}
}
