// Package config loads service configuration from an optional YAML file
// with environment-variable overrides, and can watch the file for
// changes so tick cadence and log level adjust without a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML parsing of values like "300s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
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

// MarshalYAML renders the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the service configuration.
type Config struct {
	HTTPAddr       string   `yaml:"http_addr"`
	DatabaseURL    string   `yaml:"database_url"`
	LogLevel       string   `yaml:"log_level"`
	TickInterval   Duration `yaml:"tick_interval"`
	WSWriteTimeout Duration `yaml:"ws_write_timeout"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		HTTPAddr:       ":8080",
		LogLevel:       "INFO",
		TickInterval:   Duration(300 * time.Second),
		WSWriteTimeout: Duration(10 * time.Second),
	}
}

// Load reads the YAML file at path (optional: an empty path skips the
// file), applies defaults, then applies environment overrides
// (HTTP_ADDR, DATABASE_URL, LOG_LEVEL, TICK_INTERVAL).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = Duration(300 * time.Second)
	}
	if cfg.WSWriteTimeout <= 0 {
		cfg.WSWriteTimeout = Duration(10 * time.Second)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.TickInterval = Duration(parsed)
		}
	}
}
