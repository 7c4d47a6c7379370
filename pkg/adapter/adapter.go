package adapter

import (
	"context"
)

// Adapter represents a protocol server that can be managed by server.Server.
//
// gopherd ships a single adapter (Gopher over TCP), but the server drives
// adapters only through this interface so another protocol front end can be
// added without touching the lifecycle code.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Startup: Serve() binds the listener and blocks until shutdown
//  3. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active requests to complete (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails (e.g. the port cannot be bound) or shutdown
	//     is not graceful
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must be idempotent and safe to call concurrently with
	// Serve(). When ctx is cancelled, remaining connections are closed.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics, e.g. "Gopher".
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// Once Serve() has bound its listener this is the actual port, which
	// differs from the configured one when the configuration asked for port 0.
	// Before that it returns the configured port.
	Port() int
}
