// Package config provides YAML settings loading and validation for the
// facron daemon. The settings file is optional; every field has a default.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfPath is the facron table read when neither the settings file
// nor the command line names one.
const DefaultConfPath = "/etc/facron.conf"

// Config is the top-level settings structure for the facron daemon.
type Config struct {
	// ConfPath is the facron table: one watch entry per line. The --conf
	// flag overrides it.
	ConfPath string `yaml:"conf_path"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Backend selects the watch implementation: "fanotify" (needs
	// CAP_SYS_ADMIN) or "fsnotify". Defaults to "fanotify".
	Backend string `yaml:"backend"`

	// StatusAddr is the listen address of the status HTTP server
	// (e.g. "127.0.0.1:9100"). Empty disables it.
	StatusAddr string `yaml:"status_addr"`

	// HistoryPath is the SQLite database holding the launch record.
	// Defaults to ":memory:".
	HistoryPath string `yaml:"history_path"`

	// HistoryLimit caps the number of launches kept. Defaults to 100 when
	// omitted or zero.
	HistoryLimit int `yaml:"history_limit"`

	// PIDFile, when set, is locked with flock and holds the daemon's pid.
	PIDFile string `yaml:"pid_file"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"fanotify": true,
	"fsnotify": true,
}

// Default returns the settings used when no settings file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ConfPath == "" {
		cfg.ConfPath = DefaultConfPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Backend == "" {
		cfg.Backend = "fanotify"
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = ":memory:"
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 100
	}
}

// Validate checks enumerated fields and addresses. Callers that override
// fields after loading, such as from command-line flags, call it again.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.ConfPath == "" {
		errs = append(errs, errors.New("conf_path is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if !validBackends[cfg.Backend] {
		errs = append(errs, fmt.Errorf("backend %q must be one of: fanotify, fsnotify", cfg.Backend))
	}
	if cfg.StatusAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.StatusAddr); err != nil {
			errs = append(errs, fmt.Errorf("status_addr %q: %w", cfg.StatusAddr, err))
		}
	}
	if cfg.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("history_limit %d must not be negative", cfg.HistoryLimit))
	}

	return errors.Join(errs...)
}
