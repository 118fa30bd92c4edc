// Package config holds the settings of a deflake run and loads them from
// an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/perfgo/deflake/attempt"
	"github.com/perfgo/deflake/failurelog"
	"github.com/perfgo/deflake/probe"
)

// DefaultPath is the config file picked up from the working directory.
const DefaultPath = ".deflake.yaml"

// DefaultDuration is the session budget used when none is configured.
const DefaultDuration = 5 * time.Second

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Binary         string        `yaml:"binary"`
	Framework      string        `yaml:"framework"`
	Duration       time.Duration `yaml:"duration"`
	Workers        int           `yaml:"workers"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// Timing probe runs before a session; 0 skips the probe
	ProbeRuns int `yaml:"probe_runs"`
	// Failure log path; empty disables the log
	FailureLog string   `yaml:"failure_log"`
	Args       []string `yaml:"args"`
}

// DefaultWorkers returns half the CPUs, at least one.
func DefaultWorkers(numCPU int) int {
	return max(1, numCPU/2)
}

// Defaults returns the settings used when nothing is configured.
func Defaults(numCPU int) Config {
	return Config{
		Framework:      string(attempt.FrameworkGTest),
		Duration:       DefaultDuration,
		Workers:        DefaultWorkers(numCPU),
		AttemptTimeout: probe.DefaultTimeout,
		FailureLog:     failurelog.DefaultPath,
	}
}

// Load reads the YAML file at path over base. Keys missing from the file
// keep their base value; unknown keys are rejected.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that a session can be started with c.
func (c Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("%w: no test binary given", ErrInvalid)
	}
	info, err := os.Stat(c.Binary)
	if err != nil {
		return fmt.Errorf("%w: test binary not found: %s", ErrInvalid, c.Binary)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: test binary is not a regular file: %s", ErrInvalid, c.Binary)
	}
	if _, err := attempt.ParseFramework(c.Framework); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: processes must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative, got %s", ErrInvalid, c.Duration)
	}
	if c.AttemptTimeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %s", ErrInvalid, c.AttemptTimeout)
	}
	if c.ProbeRuns < 0 {
		return fmt.Errorf("%w: probe runs must not be negative, got %d", ErrInvalid, c.ProbeRuns)
	}
	return nil
}
