package config

import (
	"github.com/marmos91/gopherd/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// GopherMetrics is the collector for the Gopher adapter (never nil, noop if disabled)
	GopherMetrics metrics.GopherMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// If metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned together with the HTTP server.
// Otherwise the server is nil and collectors are no-ops.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Server:        nil,
			GopherMetrics: metrics.NewNoopGopherMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:        server,
		GopherMetrics: metrics.NewGopherMetrics(),
	}
}
