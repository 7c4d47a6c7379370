package gopher

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// GopherConfig holds configuration parameters for the Gopher server.
//
// Default values (applied by New if zero):
//   - Hostname: "localhost"
//   - MapFilename: "gophermap"
//   - MaxSelectorLength: 4096
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
//
// Port 0 asks the OS for a free port; pkg/config defaults it to 70 before the
// adapter ever sees it.
type GopherConfig struct {
	// Enabled controls whether the Gopher adapter is started.
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Root is the directory served to clients. Selectors never resolve
	// outside it.
	Root string `mapstructure:"root" json:"root" validate:"required"`

	// Hostname is advertised in every menu entry. Clients use it to connect
	// back, so it must be reachable from them.
	Hostname string `mapstructure:"hostname" json:"hostname" validate:"required,hostname_rfc1123|ip"`

	// ListenAddress is the interface to bind. Empty binds all interfaces.
	ListenAddress string `mapstructure:"listen_address" json:"listen_address" validate:"omitempty,ip"`

	// Port is the TCP port to listen on. The standard Gopher port is 70.
	Port int `mapstructure:"port" json:"port" validate:"min=0,max=65535"`

	// AdvertisedPort is the port written into menu entries when it differs
	// from Port (e.g. behind NAT or a port redirect). 0 means "same as the
	// bound port".
	AdvertisedPort int `mapstructure:"advertised_port" json:"advertised_port" validate:"min=0,max=65535"`

	// MapFilename is the per-directory override file. It must be a bare file
	// name.
	MapFilename string `mapstructure:"map_filename" json:"map_filename"`

	// MaxConnections limits concurrent client connections. When reached, new
	// connections wait in the kernel backlog. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" json:"max_connections" validate:"min=0"`

	// MaxSelectorLength is the longest selector line accepted, in bytes,
	// excluding the line terminator.
	MaxSelectorLength int `mapstructure:"max_selector_length" json:"max_selector_length" validate:"min=0"`

	// ReadTimeout bounds how long a client may take to send its selector.
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds each write of the response. It is refreshed on
	// every write, so long transfers are fine as long as the client keeps
	// reading.
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long shutdown waits for active connections
	// before force-closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the connection counters log line.
	// 0 disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" json:"metrics_log_interval" validate:"min=0"`

	// RateLimit throttles accepted connections.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig configures the accept-side token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained connection rate. 0 disables
	// limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second" json:"requests_per_second"`

	// Burst is the bucket size. 0 means RequestsPerSecond.
	Burst uint `mapstructure:"burst" json:"burst"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *GopherConfig) applyDefaults() {
	// Enabled and Port defaults live in pkg/config so explicit false and 0
	// from a config file survive.

	if c.Hostname == "" {
		c.Hostname = "localhost"
	}
	if c.MapFilename == "" {
		c.MapFilename = "gophermap"
	}
	if c.MaxSelectorLength == 0 {
		c.MaxSelectorLength = 4096
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// validate checks that the configuration is usable.
func (c *GopherConfig) validate() error {
	if c.Root == "" {
		return fmt.Errorf("root directory is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.AdvertisedPort < 0 || c.AdvertisedPort > 65535 {
		return fmt.Errorf("invalid advertised port %d: must be 0-65535", c.AdvertisedPort)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxSelectorLength <= 0 {
		return fmt.Errorf("invalid MaxSelectorLength %d: must be > 0", c.MaxSelectorLength)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if err := ValidateMapFilename(c.MapFilename); err != nil {
		return err
	}
	return nil
}

// ValidateMapFilename checks that name is a plain file name with no
// directory components.
func ValidateMapFilename(name string) error {
	if name == "" {
		return nil
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("invalid map filename %q: must be a bare file name", name)
	}
	return nil
}
