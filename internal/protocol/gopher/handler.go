package gopher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/gopherd/internal/logger"
	"github.com/spf13/afero"
)

// Config is the immutable server configuration the core needs.
type Config struct {
	// Root is the directory selectors are resolved against
	Root string

	// Host is the hostname advertised in menu entries
	Host string

	// Port is the port advertised in menu entries
	Port int

	// MapFilename is the per-directory override file, e.g. "gophermap".
	// Empty disables override files.
	MapFilename string
}

// ResponseKind identifies which response a request produced.
type ResponseKind string

const (
	ResponseMenu     ResponseKind = "menu"
	ResponseText     ResponseKind = "text"
	ResponseBinary   ResponseKind = "binary"
	ResponseNotFound ResponseKind = "not_found"
)

// Response summarizes a served request for logging and metrics.
type Response struct {
	Kind ResponseKind

	// Selector is the client selector with its line terminator removed
	Selector string

	// Path is the resolved filesystem path; empty if resolution failed
	Path string

	// Bytes is the number of bytes written to the client
	Bytes int64

	// Diagnostics counts gophermap lines dropped while building a menu
	Diagnostics int
}

// Handler dispatches one selector to a menu, a file, or a not-found line.
type Handler struct {
	config   Config
	fs       afero.Fs
	resolver *Resolver
	menus    *MenuBuilder
	content  *ContentServer
}

// NewHandler creates a Handler serving cfg.Root through fs.
func NewHandler(cfg Config, fs afero.Fs) (*Handler, error) {
	resolver, err := NewResolver(cfg.Root)
	if err != nil {
		return nil, err
	}
	cfg.Root = resolver.Root()

	return &Handler{
		config:   cfg,
		fs:       fs,
		resolver: resolver,
		menus:    NewMenuBuilder(fs, resolver, cfg.MapFilename, cfg.Host, cfg.Port),
		content:  NewContentServer(fs),
	}, nil
}

// Config returns the handler's configuration.
func (h *Handler) Config() Config {
	return h.config
}

// Serve answers rawSelector on w.
//
// Dispatch:
//   - directory that can be listed: menu followed by "."
//   - regular readable file: its contents (CRLF-normalized for text types)
//   - anything else, including selectors escaping the root: one error line
//
// A returned error means writing to the client failed or ctx was cancelled;
// the caller should drop the connection. Filesystem problems never surface
// as errors, they become not-found responses.
func (h *Handler) Serve(ctx context.Context, w io.Writer, rawSelector string) (Response, error) {
	resp := Response{Selector: TrimSelector(rawSelector)}

	path, err := h.resolver.Resolve(resp.Selector)
	if err != nil {
		logger.Warn("Rejected selector %q: %v", resp.Selector, err)
		return h.serveNotFound(w, resp)
	}
	resp.Path = path

	if _, err := h.resolver.Confine(h.fs, path); err != nil {
		logger.Warn("Rejected selector %q: %v", resp.Selector, err)
		return h.serveNotFound(w, resp)
	}

	info, err := h.fs.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Cannot stat %s: %v", path, err)
		}
		return h.serveNotFound(w, resp)
	}

	switch {
	case info.IsDir():
		return h.serveDirectory(ctx, w, resp)
	case info.Mode().IsRegular():
		return h.serveFile(ctx, w, resp)
	default:
		logger.Debug("Refusing special file %s (mode %v)", path, info.Mode())
		return h.serveNotFound(w, resp)
	}
}

func (h *Handler) serveDirectory(ctx context.Context, w io.Writer, resp Response) (Response, error) {
	menu, diagnostics, err := h.menus.Build(ctx, resp.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp, ctxErr
		}
		logger.Warn("Cannot build menu for %s: %v", resp.Path, err)
		return h.serveNotFound(w, resp)
	}

	resp.Kind = ResponseMenu
	resp.Diagnostics = len(diagnostics)

	n, err := menu.WriteTo(w)
	resp.Bytes = n
	if err != nil {
		return resp, fmt.Errorf("write menu: %w", err)
	}
	return resp, nil
}

func (h *Handler) serveFile(ctx context.Context, w io.Writer, resp Response) (Response, error) {
	f, err := h.content.Open(resp.Path)
	if err != nil {
		logger.Warn("Cannot open %s: %v", resp.Path, err)
		return h.serveNotFound(w, resp)
	}
	defer func() { _ = f.Close() }()

	tag := ClassifyByExtension(resp.Path)
	resp.Kind = ResponseBinary
	if tag == TypeText {
		resp.Kind = ResponseText
	}

	n, err := h.content.Send(ctx, w, f, tag)
	resp.Bytes = n
	return resp, err
}

func (h *Handler) serveNotFound(w io.Writer, resp Response) (Response, error) {
	resp.Kind = ResponseNotFound
	n, err := WriteError(w, resp.Selector, h.config.Host, h.config.Port)
	resp.Bytes = n
	return resp, err
}

// WriteError writes the single error line sent for an unservable selector.
// No menu terminator follows it.
func WriteError(w io.Writer, selector, host string, port int) (int64, error) {
	return writeLine(w, errorEntry(selector, host, port))
}

// WriteErrorMessage writes a single error line carrying message, for
// connections refused before a selector is read.
func WriteErrorMessage(w io.Writer, message, host string, port int) (int64, error) {
	return writeLine(w, MenuEntry{
		Type:    TypeError,
		Display: displayName(message),
		Host:    host,
		Port:    port,
	})
}

func writeLine(w io.Writer, entry MenuEntry) (int64, error) {
	n, err := io.WriteString(w, entry.String()+CRLF)
	if err != nil {
		return int64(n), fmt.Errorf("write error line: %w", err)
	}
	return int64(n), nil
}
