package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/gopherd/pkg/adapter/gopher"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the complete gopherd configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (GOPHERD_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Gopher configures the Gopher protocol adapter
	Gopher gopher.GopherConfig `mapstructure:"gopher" json:"gopher"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" json:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is the log line format: text or json
	Format string `mapstructure:"format" json:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr, or a file path
	Output string `mapstructure:"output" json:"output" validate:"required"`
}

// ServerConfig contains settings that apply to the whole process.
type ServerConfig struct {
	// ShutdownTimeout bounds how long the server waits for adapters to stop
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Port is the HTTP port for /metrics
	Port int `mapstructure:"port" json:"port" validate:"min=0,max=65535"`
}

// Load loads configuration from file, environment variables, and defaults.
//
// When configPath is empty the default location is searched
// ($XDG_CONFIG_HOME/gopherd/config.yaml or ~/.config/gopherd/config.yaml).
// A missing config file is not an error: defaults and environment
// variables are used instead.
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// FlagBindings maps CLI flag names to the config keys they override.
var FlagBindings = map[string]string{
	"root":         "gopher.root",
	"host":         "gopher.hostname",
	"listen":       "gopher.listen_address",
	"port":         "gopher.port",
	"map-filename": "gopher.map_filename",
	"log-level":    "logging.level",
}

// LoadWithFlags is Load with command-line overrides. Only flags named in
// FlagBindings and explicitly set by the user take effect.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable binding and the file search path.
func setupViper(v *viper.Viper, configPath string) {
	// GOPHERD_GOPHER_ROOT -> gopher.root
	v.SetEnvPrefix("GOPHERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Env overrides only reach Unmarshal for keys viper knows about, so
	// register every key even when no config file is present.
	bindKeys(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

var configKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"gopher.enabled",
	"gopher.root",
	"gopher.hostname",
	"gopher.listen_address",
	"gopher.port",
	"gopher.advertised_port",
	"gopher.map_filename",
	"gopher.max_connections",
	"gopher.max_selector_length",
	"gopher.read_timeout",
	"gopher.write_timeout",
	"gopher.shutdown_timeout",
	"gopher.metrics_log_interval",
	"gopher.rate_limit.requests_per_second",
	"gopher.rate_limit.burst",
}

func bindKeys(v *viper.Viper) {
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range FlagBindings {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// readConfigFile reads the config file, tolerating its absence.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit path that does not exist is treated the same way.
		if configPath != "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory following XDG conventions.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gopherd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "gopherd")
}

// GetDefaultConfigPath returns the path of the default config file.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists reports whether the default config file exists.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory.
func GetConfigDir() string {
	return getConfigDir()
}
