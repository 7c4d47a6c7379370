package framework

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// TestContext holds the context for a test run
type TestContext struct {
	T      *testing.T
	Server *TestServer
}

// NewTestContext creates and starts a server for the test. The server is
// stopped automatically when the test ends.
func NewTestContext(t *testing.T, cfg TestServerConfig) *TestContext {
	t.Helper()

	tc := &TestContext{T: t}
	t.Cleanup(tc.Cleanup)

	tc.Server = NewTestServer(t, cfg)
	if err := tc.Server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	return tc
}

// Cleanup stops the server.
func (tc *TestContext) Cleanup() {
	if tc.Server != nil {
		tc.Server.Stop()
	}
}

// WriteFile writes content under the served root, creating parents.
func (tc *TestContext) WriteFile(relativePath string, content []byte) {
	tc.T.Helper()
	path := tc.Server.Path(relativePath)
	mustMkdirAll(tc.T, filepath.Dir(path))
	if err := os.WriteFile(path, content, 0644); err != nil {
		tc.T.Fatalf("Failed to write %s: %v", relativePath, err)
	}
}

// Mkdir creates a directory (and parents) under the served root.
func (tc *TestContext) Mkdir(relativePath string) {
	tc.T.Helper()
	mustMkdirAll(tc.T, tc.Server.Path(relativePath))
}

// Fetch sends selector and returns the complete response.
func (tc *TestContext) Fetch(selector string) []byte {
	tc.T.Helper()
	body, err := Fetch(tc.Server.Addr(), selector)
	if err != nil {
		tc.T.Fatalf("Fetch %q: %v", selector, err)
	}
	return body
}

// FetchMenu fetches selector and parses the response as a menu.
func (tc *TestContext) FetchMenu(selector string) []MenuItem {
	tc.T.Helper()
	items, err := ParseMenu(tc.Fetch(selector))
	if err != nil {
		tc.T.Fatalf("Menu %q: %v", selector, err)
	}
	return items
}

// Fetch performs one Gopher transaction against addr.
func Fetch(addr, selector string) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	if _, err := io.WriteString(conn, selector+"\r\n"); err != nil {
		return nil, fmt.Errorf("send selector: %w", err)
	}
	return io.ReadAll(conn)
}

// MenuItem is one parsed menu line.
type MenuItem struct {
	Type     byte
	Display  string
	Selector string
	Host     string
	Port     int
}

// Addr returns the host:port the item points at.
func (m MenuItem) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// ParseMenu parses a menu response. It requires CRLF line endings and the
// terminating "." line.
func ParseMenu(body []byte) ([]MenuItem, error) {
	text := string(body)
	if !strings.HasSuffix(text, ".\r\n") {
		return nil, fmt.Errorf("menu not terminated: %q", tail(text))
	}

	lines := strings.Split(strings.TrimSuffix(text, ".\r\n"), "\r\n")
	// Split leaves one empty element after the last CRLF.
	lines = lines[:len(lines)-1]

	items := make([]MenuItem, 0, len(lines))
	for i, line := range lines {
		if line == "" || strings.Contains(line, "\n") {
			return nil, fmt.Errorf("line %d: malformed %q", i+1, line)
		}
		fields := strings.Split(line[1:], "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("line %d: want 4 fields, got %d in %q", i+1, len(fields), line)
		}
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad port %q", i+1, fields[3])
		}
		items = append(items, MenuItem{
			Type:     line[0],
			Display:  fields[0],
			Selector: fields[1],
			Host:     fields[2],
			Port:     port,
		})
	}
	return items, nil
}

func tail(s string) string {
	if len(s) > 40 {
		return s[len(s)-40:]
	}
	return s
}

// FindItem returns the first item with the given display string.
func FindItem(items []MenuItem, display string) (MenuItem, bool) {
	for _, item := range items {
		if item.Display == display {
			return item, true
		}
	}
	return MenuItem{}, false
}
