package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/gopherd/internal/logger"
	"github.com/marmos91/gopherd/pkg/adapter"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve() has already been called")

// Server manages the lifecycle of one or more protocol adapters.
//
// Lifecycle:
//  1. Creation: New() with the shutdown budget
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation (or one adapter failing) stops them all
//
// Example usage:
//
//	srv := server.New(30 * time.Second)
//	if err := srv.AddAdapter(gopher.New(cfg.Gopher, m)); err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	return srv.Serve(ctx)
type Server struct {
	// shutdownTimeout bounds the Stop() calls issued during shutdown
	shutdownTimeout time.Duration

	// mu protects the adapters slice
	mu       sync.RWMutex
	adapters []adapter.Adapter

	served atomic.Bool
}

// New creates a Server. A non-positive shutdownTimeout defaults to 30s.
func New(shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &Server{
		shutdownTimeout: shutdownTimeout,
	}
}

// AddAdapter registers a protocol adapter.
//
// Returns an error if the protocol is already registered, if another adapter
// is configured for the same non-zero port, or if Serve() has been called.
//
// Panics if a is nil.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served.Load() {
		return fmt.Errorf("cannot add %s adapter after Serve() has been called", a.Protocol())
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		// Port 0 means "any free port" and never conflicts.
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Debug("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Serve starts all registered adapters and blocks until ctx is cancelled or an
// adapter fails.
//
// Returns nil after a shutdown triggered by ctx, or the first adapter error
// (e.g. a port that cannot be bound). Either way every adapter is stopped and
// has returned before Serve does.
//
// Serve may only be called once; later calls return ErrAlreadyServed.
func (s *Server) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return ErrAlreadyServed
	}

	s.mu.RLock()
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.RUnlock()

	if len(adapters) == 0 {
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting gopherd with %d adapter(s)", len(adapters))

	// Adapters run under their own context so a failing adapter can stop the
	// others without touching the caller's context.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Buffered so failing adapters never block.
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			err := a.Serve(runCtx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
			case runCtx.Err() != nil:
				// Errors after shutdown began (e.g. force-closed connections)
				// are logged but do not fail the server.
				logger.Warn("%s adapter stopped with error: %v", protocol, err)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed - initiating shutdown of all adapters", adapterErr.protocol)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	cancelRun()
	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("gopherd stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters calls Stop() on every adapter in reverse registration
// order, sharing one shutdownTimeout budget.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stopped", protocol)
		}
	}
}

// Adapters returns a copy of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
