package gopher

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gopherd/internal/logger"
	gopherproto "github.com/marmos91/gopherd/internal/protocol/gopher"
	"github.com/marmos91/gopherd/internal/ratelimiter"
	"github.com/marmos91/gopherd/pkg/metrics"
	"github.com/spf13/afero"
)

// GopherAdapter implements the adapter.Adapter interface for the Gopher
// protocol (RFC 1436).
//
// Architecture:
// GopherAdapter owns the TCP listener and the connection lifecycle. Each
// accepted connection is handled by a GopherConnection in its own goroutine,
// which reads one selector, writes one response and closes. All connections
// share a single read-only gopher.Handler.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Wait for active connections to complete (up to ShutdownTimeout)
//  4. After the timeout, shutdownCtx is cancelled so transfers abort at
//     their next read, and remaining connections are force-closed
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown is idempotent.
type GopherAdapter struct {
	config GopherConfig

	// fs is the filesystem the content root is read through
	fs afero.Fs

	// mu guards listener and boundPort, which Serve sets while Stop may be
	// running concurrently
	mu        sync.Mutex
	listener  net.Listener
	boundPort int

	// handler serves selectors; created in Serve once the port is known
	handler *gopherproto.Handler

	// limiter throttles accepted connections; nil means unlimited
	limiter *ratelimiter.RateLimiter

	metrics metrics.GopherMetrics

	// activeConns tracks connection goroutines for graceful shutdown
	activeConns sync.WaitGroup

	shutdownOnce sync.Once

	// shutdown is closed when shutdown begins
	shutdown chan struct{}

	connCount     atomic.Int32
	acceptedCount atomic.Uint64
	rejectedCount atomic.Uint64

	// connSemaphore limits concurrent connections when MaxConnections > 0
	connSemaphore chan struct{}

	// shutdownCtx is handed to every connection and cancelled when
	// connections are force-closed
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection id to net.Conn for forced closure
	activeConnections sync.Map
}

// New creates a GopherAdapter serving config.Root from the local filesystem.
//
// The adapter is created in a stopped state; call Serve() to bind the port.
// Zero values in config are replaced with defaults. Panics if the resulting
// configuration is invalid, which indicates a programming error since
// pkg/config validates user input first.
//
// gopherMetrics may be nil for no metrics.
func New(config GopherConfig, gopherMetrics metrics.GopherMetrics) *GopherAdapter {
	return NewWithFs(config, afero.NewReadOnlyFs(afero.NewOsFs()), gopherMetrics)
}

// NewWithFs is New with an explicit filesystem. The root is resolved inside fs.
func NewWithFs(config GopherConfig, fs afero.Fs, gopherMetrics metrics.GopherMetrics) *GopherAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid Gopher config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Gopher connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("Gopher connection limit: unlimited")
	}

	if gopherMetrics == nil {
		gopherMetrics = metrics.NewNoopGopherMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &GopherAdapter{
		config:         config,
		fs:             fs,
		boundPort:      config.Port,
		limiter:        ratelimiter.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst),
		metrics:        gopherMetrics,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// Serve binds the listener and accepts connections until ctx is cancelled or
// Stop() is called.
//
// Startup fails if the content root is not a directory or the port cannot be
// bound. Returns nil after a graceful shutdown and an error if connections
// had to be force-closed.
func (s *GopherAdapter) Serve(ctx context.Context) error {
	info, err := s.fs.Stat(s.config.Root)
	if err != nil {
		return fmt.Errorf("gopher root %s: %w", s.config.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("gopher root %s is not a directory", s.config.Root)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(s.config.ListenAddress, strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to create Gopher listener on port %d: %w", s.config.Port, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	advertised := s.config.AdvertisedPort
	if advertised == 0 {
		advertised = port
	}

	handler, err := gopherproto.NewHandler(gopherproto.Config{
		Root:        s.config.Root,
		Host:        s.config.Hostname,
		Port:        advertised,
		MapFilename: s.config.MapFilename,
	}, s.fs)
	if err != nil {
		_ = listener.Close()
		return err
	}

	s.mu.Lock()
	select {
	case <-s.shutdown:
		// Stop() won the race; nothing has been accepted yet.
		s.mu.Unlock()
		_ = listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.boundPort = port
	s.handler = handler
	s.mu.Unlock()

	logger.Info("Gopher server listening on port %d (root=%s host=%s advertised_port=%d)",
		port, handler.Config().Root, s.config.Hostname, advertised)
	logger.Debug("Gopher config: max_connections=%d max_selector_length=%d read_timeout=%v write_timeout=%v rate_limit=%d/s",
		s.config.MaxConnections, s.config.MaxSelectorLength, s.config.ReadTimeout, s.config.WriteTimeout,
		s.config.RateLimit.RequestsPerSecond)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Gopher shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics()
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting Gopher connection: %v", err)
				continue
			}
		}

		if !s.limiter.Allow() {
			s.reject(tcpConn, "rate_limited", "Too many requests, try again later")
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			continue
		}

		s.activeConns.Add(1)
		current := s.connCount.Add(1)
		s.acceptedCount.Add(1)

		id := uuid.NewString()
		s.activeConnections.Store(id, tcpConn)

		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(current)

		logger.Debug("Gopher connection %s accepted from %s (active: %d)", id, tcpConn.RemoteAddr(), current)

		conn := NewGopherConnection(s, id, tcpConn)
		go func() {
			defer func() {
				s.activeConnections.Delete(id)
				s.activeConns.Done()
				remaining := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(remaining)

				logger.Debug("Gopher connection %s closed (active: %d)", id, remaining)
			}()

			conn.Serve(s.shutdownCtx)
		}()
	}
}

// reject answers a connection refused before its selector is read with one
// error line and closes it, without holding up the accept loop.
func (s *GopherAdapter) reject(conn net.Conn, reason, message string) {
	s.rejectedCount.Add(1)
	s.metrics.RecordConnectionRejected(reason)
	logger.Debug("Gopher connection from %s rejected: %s", conn.RemoteAddr(), reason)

	host, port := s.config.Hostname, s.advertisedPort()
	go func() {
		defer func() { _ = conn.Close() }()

		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := gopherproto.WriteErrorMessage(conn, message, host, port); err != nil {
			logger.Debug("Error writing rejection to %s: %v", conn.RemoteAddr(), err)
			return
		}
		drain(conn)
	}()
}

// initiateShutdown closes the listener. In-flight requests keep running.
// Safe to call multiple times.
func (s *GopherAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Gopher shutdown initiated")

		s.mu.Lock()
		close(s.shutdown)
		listener := s.listener
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				logger.Debug("Error closing Gopher listener: %v", err)
			}
		}
	})
}

// gracefulShutdown waits up to ShutdownTimeout for active connections, then
// force-closes whatever is left.
func (s *GopherAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Gopher graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	select {
	case <-s.connectionsDone():
		logger.Info("Gopher graceful shutdown complete: all connections closed")
		s.cancelRequests()
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Gopher shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("gopher shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *GopherAdapter) connectionsDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

// forceCloseConnections closes every tracked TCP connection so blocked reads
// and writes fail immediately.
func (s *GopherAdapter) forceCloseConnections() {
	s.cancelRequests()

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		id := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", id, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
			logger.Debug("Force-closed connection %s", id)
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d Gopher connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for active connections until
// ctx is done.
//
// Safe to call multiple times and concurrently with Serve().
func (s *GopherAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.connectionsDone():
		s.cancelRequests()
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Gopher shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// logMetrics periodically logs connection counters until shutdown starts.
func (s *GopherAdapter) logMetrics() {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("Gopher metrics: active_connections=%d accepted=%d rejected=%d",
				s.connCount.Load(), s.acceptedCount.Load(), s.rejectedCount.Load())
		}
	}
}

// GetActiveConnections returns the current number of active connections.
func (s *GopherAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound TCP port once Serve() is listening, and the
// configured port before that.
func (s *GopherAdapter) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundPort
}

func (s *GopherAdapter) advertisedPort() int {
	if s.config.AdvertisedPort != 0 {
		return s.config.AdvertisedPort
	}
	return s.Port()
}

// Protocol returns "Gopher".
func (s *GopherAdapter) Protocol() string {
	return "Gopher"
}
