package config

import (
	"fmt"
	"net"
	"time"
)

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.validateTimeouts(); err != nil {
		return fmt.Errorf("timeouts: %w", err)
	}
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.validateMetrics(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if c.History.MaxRecords < 0 {
		return fmt.Errorf("history: max_records must be >= 0, got %d", c.History.MaxRecords)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ProcRoot == "" {
		return fmt.Errorf("proc_root cannot be empty")
	}
	if c.Paths.ControlFIFO == "" {
		return fmt.Errorf("control_fifo cannot be empty")
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("state_dir cannot be empty")
	}
	if c.Paths.LogDir == "" {
		return fmt.Errorf("log_dir cannot be empty")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	fields := map[string]string{
		"quiesce":      c.Timeouts.Quiesce,
		"quiesce_poll": c.Timeouts.QuiescePoll,
		"restore":      c.Timeouts.Restore,
	}

	for name, val := range fields {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, val)
		}
		if d <= 0 {
			return fmt.Errorf("%s: must be positive, got %s", name, d)
		}
		if d > time.Minute {
			return fmt.Errorf("%s: too large (%s), max is 1m", name, d)
		}
	}

	if c.Timeouts.GetQuiescePoll() > c.Timeouts.GetQuiesce() {
		return fmt.Errorf("quiesce_poll (%s) must not exceed quiesce (%s)",
			c.Timeouts.QuiescePoll, c.Timeouts.Quiesce)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits must be >= 0")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Address == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
		return fmt.Errorf("address %q: %w", c.Metrics.Address, err)
	}
	return nil
}
