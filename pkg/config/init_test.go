package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// useTempHome points HOME at a temp dir and clears XDG_CONFIG_HOME.
func useTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func TestInitConfig_Success(t *testing.T) {
	home := useTempHome(t)

	configPath, err := InitConfig(false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "gopherd", "config.yaml"), configPath)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)

	for _, section := range []string{
		"# gopherd Configuration File",
		"logging:",
		"server:",
		"gopher:",
		"rate_limit:",
		"# Gopher server.",
	} {
		assert.Contains(t, string(content), section)
	}

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(content, &doc), "generated config is not valid YAML")
	assert.Equal(t, "INFO", doc["logging"]["level"])
	assert.Equal(t, 70, doc["gopher"]["port"])
	assert.Equal(t, "30s", doc["gopher"]["read_timeout"])
}

func TestInitConfig_SectionOrder(t *testing.T) {
	data, err := GenerateSampleConfig()
	require.NoError(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.Content, 1)

	mapping := doc.Content[0]
	var keys []string
	for i := 0; i < len(mapping.Content); i += 2 {
		keys = append(keys, mapping.Content[i].Value)
	}
	assert.Equal(t, []string{"logging", "server", "gopher"}, keys)
}

func TestInitConfig_LoadsBack(t *testing.T) {
	useTempHome(t)
	root := t.TempDir()

	configPath, err := InitConfig(false)
	require.NoError(t, err)

	// The sample root does not exist on test machines
	t.Setenv("GOPHERD_GOPHER_ROOT", root)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	want := GetDefaultConfig()
	want.Gopher.Root = root
	assert.Equal(t, want, cfg)
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	useTempHome(t)

	_, err := InitConfig(false)
	require.NoError(t, err)

	_, err = InitConfig(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	useTempHome(t)

	configPath, err := InitConfig(false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(configPath, []byte("# Modified"), 0644))

	newPath, err := InitConfig(true)
	require.NoError(t, err)
	assert.Equal(t, configPath, newPath)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# gopherd Configuration File")
	assert.NotContains(t, string(content), "# Modified")
}

func TestInitConfigAt_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "gopherd.yaml")

	require.NoError(t, InitConfigAt(path, false))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
