// Package config loads the server configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "45m".
type Duration time.Duration

// UnmarshalYAML satisfies yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Pipeline holds the orchestration knobs.
type Pipeline struct {
	// StageConcurrency caps how many orders run a given stage at once.
	StageConcurrency int `yaml:"stage_concurrency" validate:"omitempty,min=1,max=64"`
	// StageTimeout is the wall-clock budget for one stage run.
	StageTimeout Duration `yaml:"stage_timeout"`
	// StallThreshold is how long an active order may stay silent before the
	// watchdog fails it.
	StallThreshold Duration `yaml:"stall_threshold"`
	// WatchdogInterval is how often the watchdog scans for stalled orders.
	WatchdogInterval Duration `yaml:"watchdog_interval"`
	// RetryAttempts bounds internal retries of transient stage step errors.
	RetryAttempts int `yaml:"retry_attempts" validate:"omitempty,min=1,max=10"`
}

// Stream holds the progress streaming knobs.
type Stream struct {
	// PingInterval is the SSE keepalive interval.
	PingInterval Duration `yaml:"ping_interval"`
	// ReconnectBackoff is the client default wait between stream reconnects.
	ReconnectBackoff Duration `yaml:"reconnect_backoff"`
	// PollInterval is the client default reconciliation poll interval.
	PollInterval Duration `yaml:"poll_interval"`
}

// Config is the server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr" validate:"omitempty,hostname_port"`
	// DBPath is the SQLite database file path.
	DBPath   string   `yaml:"db_path"`
	Pipeline Pipeline `yaml:"pipeline"`
	Stream   Stream   `yaml:"stream"`
}

// Load reads, parses and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"stage_timeout", c.Pipeline.StageTimeout},
		{"stall_threshold", c.Pipeline.StallThreshold},
		{"watchdog_interval", c.Pipeline.WatchdogInterval},
		{"ping_interval", c.Stream.PingInterval},
		{"reconnect_backoff", c.Stream.ReconnectBackoff},
		{"poll_interval", c.Stream.PollInterval},
	} {
		if d.value < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}

	return nil
}
