package config

import (
	"fmt"

	"github.com/marmos91/gopherd/pkg/adapter"
	"github.com/marmos91/gopherd/pkg/adapter/gopher"
	"github.com/marmos91/gopherd/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// gopherMetrics may be nil, in which case the adapter records nothing.
func CreateAdapters(cfg *Config, gopherMetrics metrics.GopherMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Gopher.Enabled {
		adapters = append(adapters, gopher.New(cfg.Gopher, gopherMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
