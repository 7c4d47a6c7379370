package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture routes log output to a buffer for the duration of the test.
func capture(t *testing.T, level, logFormat string) *bytes.Buffer {
	t.Helper()
	require.NoError(t, Configure(level, logFormat, "stdout"))

	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		_ = Configure("INFO", FormatText, "stdout")
	})
	return &buf
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, "INFO", FormatText)

	Info("served %s", "/docs")

	line := strings.TrimSuffix(buf.String(), "\n")
	assert.Regexp(t, regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] served /docs$`), line)
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "WARN", FormatText)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")

	out := buf.String()
	assert.NotContains(t, out, "[DEBUG]")
	assert.NotContains(t, out, "[INFO]")
	assert.Contains(t, out, "[WARN] warn")
	assert.Contains(t, out, "[ERROR] error")

	SetLevel("debug")
	Debug("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] now visible")

	SetLevel("nonsense")
	Debug("still visible")
	assert.Contains(t, buf.String(), "still visible")
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, "DEBUG", FormatJSON)

	Warn("dropped %d line(s)", 2)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "dropped 2 line(s)", entry["msg"])
	assert.NotEmpty(t, entry["time"])
}

func TestConfigure_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gopherd.log")
	require.NoError(t, Configure("INFO", FormatText, path))
	t.Cleanup(func() { _ = Configure("INFO", FormatText, "stdout") })

	Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] to file")
	assert.NotContains(t, string(data), "\x1b[", "files never get color codes")
}

func TestConfigure_Invalid(t *testing.T) {
	assert.Error(t, Configure("LOUD", FormatText, "stdout"))
	assert.Error(t, Configure("INFO", "xml", "stdout"))
	assert.Error(t, Configure("INFO", FormatText, filepath.Join(t.TempDir(), "missing", "x.log")))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, l)
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}
