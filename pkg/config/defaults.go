package config

import (
	"strings"
	"time"

	"github.com/marmos91/gopherd/pkg/adapter/gopher"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyGopherDefaults(&cfg.Gopher)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyGopherDefaults sets Gopher adapter defaults.
func applyGopherDefaults(cfg *gopher.GopherConfig) {
	// A section with no port looks unconfigured: enable the adapter so a
	// bare config still serves. An explicit "enabled: false" next to a port
	// is kept.
	if !cfg.Enabled && cfg.Port == 0 {
		cfg.Enabled = true
	}

	if cfg.Port == 0 {
		cfg.Port = 70
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MapFilename == "" {
		cfg.MapFilename = "gophermap"
	}

	// MaxConnections defaults to 0 (unlimited)

	if cfg.MaxSelectorLength == 0 {
		cfg.MaxSelectorLength = 4096
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}

	// RateLimit defaults to disabled
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Gopher: gopher.GopherConfig{
			Enabled: true,
			Root:    "/var/gopher",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
