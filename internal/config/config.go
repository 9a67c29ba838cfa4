// Package config provides centralized configuration management for procsnap.
// Configuration is loaded from a JSON file at /etc/procsnap/config.json
// (overridable via PROCSNAP_CONFIG environment variable).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "/etc/procsnap/config.json"

	// ConfigEnvVar is the environment variable to override config file location
	ConfigEnvVar = "PROCSNAP_CONFIG"
)

// Config is the root configuration structure
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Timeouts TimeoutsConfig `json:"timeouts"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	History  HistoryConfig  `json:"history"`
}

// PathsConfig defines filesystem paths used by the daemon
type PathsConfig struct {
	ProcRoot    string `json:"proc_root"`    // procfs mount point
	ControlFIFO string `json:"control_fifo"` // Write-only request channel
	StateDir    string `json:"state_dir"`    // History database directory
	LogDir      string `json:"log_dir"`      // Relative log files are placed here
}

// TimeoutsConfig defines timeout durations for freezing and thawing targets.
// All values are duration strings (e.g., "5s", "2m", "500ms").
type TimeoutsConfig struct {
	// Quiesce bounds how long to wait for a target to report the stopped
	// state after SIGSTOP. Default: 2s.
	Quiesce string `json:"quiesce"`

	// QuiescePoll is the initial interval between /proc stat polls while
	// waiting for the stop. Default: 10ms.
	QuiescePoll string `json:"quiesce_poll"`

	// Restore bounds how long to wait for the target to leave the stopped
	// state after SIGCONT. Default: 2s.
	Restore string `json:"restore"`
}

// GetQuiesce returns the quiesce timeout as a time.Duration.
// Panics if the configuration is invalid (should be caught by validation).
func (t *TimeoutsConfig) GetQuiesce() time.Duration {
	return mustParseDuration(t.Quiesce)
}

// GetQuiescePoll returns the initial stop poll interval as a time.Duration.
func (t *TimeoutsConfig) GetQuiescePoll() time.Duration {
	return mustParseDuration(t.QuiescePoll)
}

// GetRestore returns the restore timeout as a time.Duration.
func (t *TimeoutsConfig) GetRestore() time.Duration {
	return mustParseDuration(t.Restore)
}

// mustParseDuration parses a duration string, panicking on error.
// This is safe because validation should have already verified the format.
func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("invalid duration %q: %v (config validation should have caught this)", s, err))
	}
	return d
}

// LoggingConfig defines log level, format and optional rotating file output
type LoggingConfig struct {
	Level      string `json:"level"`        // trace, debug, info, warn, error
	Format     string `json:"format"`       // text or json
	File       string `json:"file"`         // Empty logs to stderr only
	MaxSizeMB  int    `json:"max_size_mb"`  // Rotate after this size
	MaxBackups int    `json:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `json:"max_age_days"` // Days to keep rotated files
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Address string `json:"address"` // host:port, empty disables the endpoint
}

// HistoryConfig defines the operation journal
type HistoryConfig struct {
	Enabled    bool `json:"enabled"`
	MaxRecords int  `json:"max_records"` // Oldest records are pruned past this count
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.Mutex
	errConfig    error
)

// Reset clears the cached global config, forcing the next Get() call to reload.
// This is intended for testing only. Callers must ensure no concurrent Get() calls
// are in progress when calling Reset().
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = nil
	errConfig = nil
	configOnce = sync.Once{}
}

// Get returns the global config, loading it on first call.
func Get() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, errConfig = Load()
	})
	return globalConfig, errConfig
}

// Load loads configuration from PROCSNAP_CONFIG or /etc/procsnap/config.json.
// A missing default file yields the defaults; a missing file named by the
// environment variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigEnvVar)
	if configPath == "" {
		if _, err := os.Stat(DefaultConfigPath); os.IsNotExist(err) {
			cfg := DefaultConfig()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
		configPath = DefaultConfigPath
	}

	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific path.
// Returns error if file doesn't exist or is invalid.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s. Create it or unset %s", path, ConfigEnvVar)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// History is on unless the file says otherwise.
	cfg := Config{History: HistoryConfig{Enabled: true}}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w (ensure it's valid JSON)", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			ProcRoot:    "/proc",
			ControlFIFO: "/run/procsnap/operation",
			StateDir:    "/var/lib/procsnap",
			LogDir:      "/var/log/procsnap",
		},
		Timeouts: TimeoutsConfig{
			Quiesce:     "2s",
			QuiescePoll: "10ms",
			Restore:     "2s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxRecords: 1000,
		},
	}
}

// applyDefaults fills in default values for any empty fields
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	c.applyPathDefaults(defaults)
	c.applyTimeoutsDefaults(defaults)
	c.applyLoggingDefaults(defaults)
	if c.History.MaxRecords == 0 {
		c.History.MaxRecords = defaults.History.MaxRecords
	}
}

func (c *Config) applyPathDefaults(defaults *Config) {
	if c.Paths.ProcRoot == "" {
		c.Paths.ProcRoot = defaults.Paths.ProcRoot
	}
	if c.Paths.ControlFIFO == "" {
		c.Paths.ControlFIFO = defaults.Paths.ControlFIFO
	}
	if c.Paths.StateDir == "" {
		c.Paths.StateDir = defaults.Paths.StateDir
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = defaults.Paths.LogDir
	}
}

func (c *Config) applyTimeoutsDefaults(defaults *Config) {
	if c.Timeouts.Quiesce == "" {
		c.Timeouts.Quiesce = defaults.Timeouts.Quiesce
	}
	if c.Timeouts.QuiescePoll == "" {
		c.Timeouts.QuiescePoll = defaults.Timeouts.QuiescePoll
	}
	if c.Timeouts.Restore == "" {
		c.Timeouts.Restore = defaults.Timeouts.Restore
	}
}

func (c *Config) applyLoggingDefaults(defaults *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = defaults.Logging.MaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = defaults.Logging.MaxAgeDays
	}
}
