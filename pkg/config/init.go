package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# gopherd Configuration File
#
# Every key can be overridden by an environment variable: upper-case the
# key path, replace dots with underscores and prefix it with GOPHERD_
# (e.g. GOPHERD_GOPHER_ROOT=/srv/gopher).
#
# Durations use Go syntax: 500ms, 30s, 5m.

`

// section is one top-level block of the sample file.
type section struct {
	key     string
	comment string
	value   map[string]any
}

// InitConfig writes a commented sample configuration to the default path
// and returns that path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigAt(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigAt writes the sample configuration to path.
func InitConfigAt(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := GenerateSampleConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSampleConfig renders the default configuration as commented YAML.
func GenerateSampleConfig() ([]byte, error) {
	cfg := GetDefaultConfig()
	g := cfg.Gopher

	sections := []section{
		{
			key:     "logging",
			comment: "Logging: level is DEBUG, INFO, WARN or ERROR; format is text or json;\noutput is stdout, stderr or a file path.",
			value: map[string]any{
				"level":  cfg.Logging.Level,
				"format": cfg.Logging.Format,
				"output": cfg.Logging.Output,
			},
		},
		{
			key:     "server",
			comment: "Process-wide settings. Metrics are served over HTTP at /metrics.",
			value: map[string]any{
				"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
				"metrics": map[string]any{
					"enabled": cfg.Server.Metrics.Enabled,
					"port":    cfg.Server.Metrics.Port,
				},
			},
		},
		{
			key: "gopher",
			comment: "Gopher server. hostname and port are written into every menu entry,\n" +
				"so clients must be able to reach them. advertised_port 0 means the\n" +
				"listening port. max_connections 0 and requests_per_second 0 disable\n" +
				"the respective limits.",
			value: map[string]any{
				"enabled":              g.Enabled,
				"root":                 g.Root,
				"hostname":             g.Hostname,
				"listen_address":       g.ListenAddress,
				"port":                 g.Port,
				"advertised_port":      g.AdvertisedPort,
				"map_filename":         g.MapFilename,
				"max_connections":      g.MaxConnections,
				"max_selector_length":  g.MaxSelectorLength,
				"read_timeout":         g.ReadTimeout.String(),
				"write_timeout":        g.WriteTimeout.String(),
				"shutdown_timeout":     g.ShutdownTimeout.String(),
				"metrics_log_interval": g.MetricsLogInterval.String(),
				"rate_limit": map[string]any{
					"requests_per_second": g.RateLimit.RequestsPerSecond,
					"burst":               g.RateLimit.Burst,
				},
			},
		},
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range sections {
		var value yaml.Node
		if err := value.Encode(s.value); err != nil {
			return nil, fmt.Errorf("failed to encode %s section: %w", s.key, err)
		}
		key := &yaml.Node{
			Kind:        yaml.ScalarNode,
			Value:       s.key,
			HeadComment: s.comment,
		}
		doc.Content = append(doc.Content, key, &value)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	return buf.Bytes(), nil
}
