package gopher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/gopherd/internal/logger"
	gopherproto "github.com/marmos91/gopherd/internal/protocol/gopher"
)

const (
	// writeBufferSize is the response buffer in front of the socket.
	writeBufferSize = 32 * 1024

	lingerTimeout  = time.Second
	maxLingerBytes = 64 * 1024
)

var (
	errSelectorTooLong    = errors.New("selector too long")
	errSelectorIncomplete = errors.New("selector line not terminated before timeout")
)

// GopherConnection serves exactly one request on one TCP connection:
// read the selector line, write the response, close.
type GopherConnection struct {
	server *GopherAdapter
	id     string
	conn   net.Conn
}

func NewGopherConnection(server *GopherAdapter, id string, conn net.Conn) *GopherConnection {
	return &GopherConnection{
		server: server,
		id:     id,
		conn:   conn,
	}
}

// Serve runs the request. It recovers from panics so a single bad request
// cannot take the server down, and always closes the connection.
func (c *GopherConnection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in Gopher connection %s from %s: %v", c.id, clientAddr, r)
		}
		_ = c.conn.Close()
	}()

	start := time.Now()

	selector, err := c.readSelector()
	if err != nil {
		switch {
		case errors.Is(err, errSelectorTooLong), errors.Is(err, errSelectorIncomplete):
			logger.Warn("Gopher %s from %s: %v", c.id, clientAddr, err)
			c.respond(ctx, start, clientAddr, func(w io.Writer) (gopherproto.Response, error) {
				n, err := gopherproto.WriteError(w, "", c.host(), c.port())
				return gopherproto.Response{Kind: gopherproto.ResponseNotFound, Bytes: n}, err
			})
			c.drainInput()
		case errors.Is(err, io.EOF):
			logger.Debug("Gopher %s from %s closed before sending a selector", c.id, clientAddr)
		default:
			logger.Debug("Gopher %s from %s: read selector: %v", c.id, clientAddr, err)
		}
		return
	}

	c.respond(ctx, start, clientAddr, func(w io.Writer) (gopherproto.Response, error) {
		return c.server.handler.Serve(ctx, w, selector)
	})
}

// respond runs serve against a buffered, deadline-refreshing writer, flushes
// it, and records the outcome.
func (c *GopherConnection) respond(ctx context.Context, start time.Time, clientAddr string, serve func(io.Writer) (gopherproto.Response, error)) {
	bw := bufio.NewWriterSize(&deadlineWriter{conn: c.conn, timeout: c.server.config.WriteTimeout}, writeBufferSize)

	resp, err := serve(bw)
	if err == nil {
		err = bw.Flush()
	}
	duration := time.Since(start)

	kind := string(resp.Kind)
	if kind == "" {
		kind = "aborted"
	}
	c.server.metrics.RecordRequest(kind, duration, resp.Bytes, err)
	c.server.metrics.RecordDroppedMapLines(resp.Diagnostics)

	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("Gopher %s from %s aborted by shutdown: %v", c.id, clientAddr, err)
		} else {
			logger.Debug("Gopher %s from %s: write response: %v", c.id, clientAddr, err)
		}
		return
	}

	logger.Info("Gopher %s %s %q -> %s (%d bytes, %v)",
		c.id, clientAddr, resp.Selector, kind, resp.Bytes, duration.Round(time.Microsecond))
}

// readSelector reads the single request line. The line terminator is
// stripped by the handler.
//
// A line cut short by end of stream is accepted as-is. A line that exceeds
// MaxSelectorLength, or is still unterminated when the read deadline fires,
// is reported so the caller can answer with an error line. A connection that
// sends nothing returns the underlying error.
func (c *GopherConnection) readSelector() (string, error) {
	limit := c.server.config.MaxSelectorLength

	if timeout := c.server.config.ReadTimeout; timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return "", fmt.Errorf("set read deadline: %w", err)
		}
	}

	// Room for the selector plus CRLF; ReadSlice fails with ErrBufferFull
	// beyond that.
	r := bufio.NewReaderSize(c.conn, limit+2)
	line, err := r.ReadSlice('\n')

	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return "", errSelectorTooLong
	case errors.Is(err, io.EOF) && len(line) > 0:
	case isTimeout(err) && len(line) > 0:
		return "", errSelectorIncomplete
	default:
		return "", err
	}

	selector := gopherproto.TrimSelector(string(line))
	if len(selector) > limit {
		return "", errSelectorTooLong
	}
	return selector, nil
}

// drainInput half-closes the connection and discards unread client input
// for a short while. Closing a socket with unread data resets it, which can
// destroy the response before the client reads it.
func (c *GopherConnection) drainInput() {
	drain(c.conn)
}

func drain(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcp.CloseWrite()
	_ = tcp.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(tcp, maxLingerBytes))
}

func (c *GopherConnection) host() string {
	return c.server.config.Hostname
}

func (c *GopherConnection) port() int {
	return c.server.advertisedPort()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// deadlineWriter pushes the write deadline forward before every write, so
// WriteTimeout bounds a stalled client rather than the whole transfer.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return 0, err
		}
	}
	return w.conn.Write(p)
}
