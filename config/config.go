// Package config loads engine configuration from a YAML file with
// environment-variable overrides. Configuration covers transport and model
// selection, session defaults and ledger placement; it never carries
// session state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// Model is the model id passed to the transport, empty for the
	// transport's default.
	Model string `yaml:"model"`
	// OutputDir is the working directory handed to the native agent process.
	OutputDir string `yaml:"output_dir"`
	// HandsOff disables approval gates when true.
	HandsOff bool `yaml:"hands_off"`
	// LedgerPath is the SQLite cost ledger file; empty selects the
	// in-memory ledger.
	LedgerPath string `yaml:"ledger_path"`
	// EventBuffer is the bridge event channel capacity.
	EventBuffer int `yaml:"event_buffer"`
	// PlanningTimeout bounds one planning turn before the local fallback.
	PlanningTimeout time.Duration `yaml:"planning_timeout"`
	// MetricsInterval is the metrics-update emission period.
	MetricsInterval time.Duration `yaml:"metrics_interval"`
	// CLIPath overrides the native agent binary name or path.
	CLIPath string `yaml:"cli_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OutputDir:       ".",
		EventBuffer:     64,
		PlanningTimeout: 2 * time.Minute,
		MetricsInterval: time.Second,
		CLIPath:         "claude",
	}
}

// Load reads the YAML file at path, layers environment overrides on top and
// validates the result. A missing file is not an error; defaults plus
// environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment.
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers CONDUCTOR_* environment variables over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("CONDUCTOR_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CONDUCTOR_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("CONDUCTOR_HANDS_OFF"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.HandsOff = b
		}
	}
	if v := os.Getenv("CONDUCTOR_LEDGER_PATH"); v != "" {
		c.LedgerPath = v
	}
	if v := os.Getenv("CONDUCTOR_EVENT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.EventBuffer = n
		}
	}
	if v := os.Getenv("CONDUCTOR_PLANNING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PlanningTimeout = d
		}
	}
	if v := os.Getenv("CONDUCTOR_METRICS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MetricsInterval = d
		}
	}
	if v := os.Getenv("CONDUCTOR_CLI_PATH"); v != "" {
		c.CLIPath = v
	}
}

func (c *Config) validate() error {
	if c.EventBuffer <= 0 {
		return fmt.Errorf("config: event_buffer must be positive, got %d", c.EventBuffer)
	}
	if c.PlanningTimeout <= 0 {
		return fmt.Errorf("config: planning_timeout must be positive, got %s", c.PlanningTimeout)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("config: metrics_interval must be positive, got %s", c.MetricsInterval)
	}
	if c.CLIPath == "" {
		return fmt.Errorf("config: cli_path must not be empty")
	}
	return nil
}
