package framework

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/gopherd/internal/logger"
	"github.com/marmos91/gopherd/pkg/adapter/gopher"
	"github.com/marmos91/gopherd/pkg/config"
	"github.com/marmos91/gopherd/pkg/metrics"
	"github.com/marmos91/gopherd/pkg/server"
)

// TestServerConfig holds configuration for the test server.
// This is distinct from pkg/config.ServerConfig (application-level server settings).
type TestServerConfig struct {
	// Root is the directory to serve. A temp dir is created when empty.
	Root string

	Hostname       string
	MapFilename    string
	MaxConnections int
	RateLimit      gopher.RateLimitConfig
	LogLevel       string
	StartupTimeout time.Duration

	// Metrics, when set, records into this collector instead of a no-op.
	Metrics metrics.GopherMetrics
}

// TestServer wraps a gopherd server listening on an ephemeral loopback port.
type TestServer struct {
	t        testing.TB
	config   TestServerConfig
	adapter  *gopher.GopherAdapter
	server   *server.Server
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
	errMu    sync.Mutex
	serveErr error

	metricsServer *metrics.Server
}

// NewTestServer creates a new test server instance
func NewTestServer(t testing.TB, cfg TestServerConfig) *TestServer {
	t.Helper()

	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	if cfg.Hostname == "" {
		// Clients follow the advertised host; avoid localhost resolving to ::1
		cfg.Hostname = "127.0.0.1"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "ERROR" // Keep tests quiet by default
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TestServer{
		t:      t,
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewTestServerFromConfig builds the adapter through pkg/config the same
// way the gopherd binary does, forcing an ephemeral loopback port.
func NewTestServerFromConfig(t testing.TB, cfg *config.Config) *TestServer {
	t.Helper()

	ts := NewTestServer(t, TestServerConfig{
		Root:           cfg.Gopher.Root,
		Hostname:       cfg.Gopher.Hostname,
		MapFilename:    cfg.Gopher.MapFilename,
		MaxConnections: cfg.Gopher.MaxConnections,
		RateLimit:      cfg.Gopher.RateLimit,
		LogLevel:       cfg.Logging.Level,
	})

	gopherCfg := cfg.Gopher
	gopherCfg.ListenAddress = "127.0.0.1"
	gopherCfg.Port = 0

	withLoopback := *cfg
	withLoopback.Gopher = gopherCfg

	result := config.InitializeMetrics(&withLoopback)
	adapters, err := config.CreateAdapters(&withLoopback, result.GopherMetrics)
	if err != nil {
		t.Fatalf("Failed to create adapters: %v", err)
	}

	ga, ok := adapters[0].(*gopher.GopherAdapter)
	if !ok {
		t.Fatalf("Unexpected adapter type %T", adapters[0])
	}
	ts.adapter = ga
	ts.server = server.New(cfg.Server.ShutdownTimeout)
	ts.metricsServer = result.Server
	return ts
}

// Start starts the test server and waits until it accepts connections.
func (ts *TestServer) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return fmt.Errorf("server already started")
	}

	ts.t.Helper()

	logger.SetLevel(ts.config.LogLevel)

	if ts.adapter == nil {
		ts.adapter = gopher.New(gopher.GopherConfig{
			Enabled:         true,
			Root:            ts.config.Root,
			Hostname:        ts.config.Hostname,
			ListenAddress:   "127.0.0.1",
			Port:            0,
			MapFilename:     ts.config.MapFilename,
			MaxConnections:  ts.config.MaxConnections,
			RateLimit:       ts.config.RateLimit,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 2 * time.Second,
		}, ts.config.Metrics)
		ts.server = server.New(5 * time.Second)
	}

	if err := ts.server.AddAdapter(ts.adapter); err != nil {
		return fmt.Errorf("failed to add adapter: %w", err)
	}

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		if err := ts.server.Serve(ts.ctx); err != nil {
			ts.t.Logf("Server error: %v", err)
			ts.errMu.Lock()
			ts.serveErr = err
			ts.errMu.Unlock()
		}
	}()

	if err := ts.waitForServer(); err != nil {
		ts.cancel()
		ts.wg.Wait()
		return fmt.Errorf("server failed to start: %w", err)
	}

	ts.started = true
	ts.t.Logf("Server started successfully on port %d", ts.adapter.Port())
	return nil
}

// Stop stops the test server. It is safe to call more than once.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	started := ts.started
	ts.started = false
	ts.mu.Unlock()

	ts.cancel()
	if !started {
		return
	}

	done := make(chan struct{})
	go func() {
		ts.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ts.t.Logf("Server stopped gracefully")
	case <-time.After(10 * time.Second):
		ts.t.Logf("Server stop timeout")
	}
}

// Err returns the error Serve returned, if it has returned with one.
func (ts *TestServer) Err() error {
	ts.errMu.Lock()
	defer ts.errMu.Unlock()
	return ts.serveErr
}

// MetricsServer returns the metrics HTTP server built from the config, or
// nil when metrics are disabled. It is not started.
func (ts *TestServer) MetricsServer() *metrics.Server {
	return ts.metricsServer
}

// Port returns the port the server is listening on
func (ts *TestServer) Port() int {
	return ts.adapter.Port()
}

// Addr returns host:port for dialing the server.
func (ts *TestServer) Addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(ts.Port()))
}

// Root returns the directory being served.
func (ts *TestServer) Root() string {
	return ts.config.Root
}

// Hostname returns the host advertised in menus.
func (ts *TestServer) Hostname() string {
	return ts.config.Hostname
}

// ActiveConnections reports the adapter's live connection count.
func (ts *TestServer) ActiveConnections() int32 {
	return ts.adapter.GetActiveConnections()
}

// Path returns the absolute path of a file under the served root.
func (ts *TestServer) Path(relativePath string) string {
	return filepath.Join(ts.config.Root, filepath.FromSlash(relativePath))
}

// waitForServer waits until the adapter has bound its port and accepts a
// connection. The test connection sends nothing, which the server treats
// as a client that went away.
func (ts *TestServer) waitForServer() error {
	deadline := time.Now().Add(ts.config.StartupTimeout)
	for time.Now().Before(deadline) {
		if ts.adapter.Port() != 0 {
			conn, err := net.DialTimeout("tcp", ts.Addr(), 500*time.Millisecond)
			if err == nil {
				_ = conn.Close()
				return nil
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for server to start")
}

// FindFreePort finds an available TCP port on the loopback interface.
func FindFreePort(t testing.TB) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}

// mustMkdirAll creates dir or fails the test.
func mustMkdirAll(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
}
