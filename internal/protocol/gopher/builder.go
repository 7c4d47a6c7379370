package gopher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/gopherd/internal/logger"
	"github.com/spf13/afero"
)

// MenuBuilder produces the menu for a directory, either from its override
// file (gophermap) or from a listing of its children.
//
// Menus are built fresh for every request; nothing is cached.
type MenuBuilder struct {
	fs          afero.Fs
	resolver    *Resolver
	mapFilename string
	host        string
	port        int
}

// NewMenuBuilder creates a builder that reads through fs and advertises
// host/port on generated entries.
func NewMenuBuilder(fs afero.Fs, resolver *Resolver, mapFilename, host string, port int) *MenuBuilder {
	return &MenuBuilder{
		fs:          fs,
		resolver:    resolver,
		mapFilename: mapFilename,
		host:        host,
		port:        port,
	}
}

// Build returns the menu for dirPath.
//
// If dirPath contains a readable override file it is parsed and any dropped
// lines are returned as diagnostics. Otherwise the directory is listed.
// An error means the directory itself could not be listed.
func (b *MenuBuilder) Build(ctx context.Context, dirPath string) (Menu, []Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if b.mapFilename != "" {
		menu, diagnostics, ok := b.fromGophermap(filepath.Join(dirPath, b.mapFilename))
		if ok {
			return menu, diagnostics, nil
		}
	}

	menu, err := b.fromListing(ctx, dirPath)
	return menu, nil, err
}

// fromGophermap parses the override file at mapPath. ok is false when the
// file is absent or unreadable and the caller should list the directory.
func (b *MenuBuilder) fromGophermap(mapPath string) (menu Menu, diagnostics []Diagnostic, ok bool) {
	info, err := b.fs.Stat(mapPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, nil, false
	}
	if _, err := b.resolver.Confine(b.fs, mapPath); err != nil {
		logger.Warn("Ignoring gophermap %s: %v", mapPath, err)
		return nil, nil, false
	}

	f, err := b.fs.Open(mapPath)
	if err != nil {
		logger.Debug("Gophermap %s not readable, listing directory instead: %v", mapPath, err)
		return nil, nil, false
	}
	defer func() { _ = f.Close() }()

	menu, diagnostics, err = ParseGophermap(f, b.host, b.port)
	if err != nil {
		logger.Warn("Gophermap %s unusable, listing directory instead: %v", mapPath, err)
		return nil, nil, false
	}

	for _, d := range diagnostics {
		logger.Warn("Gophermap %s: dropped %s", mapPath, d)
	}

	return menu, diagnostics, true
}

// fromListing builds one entry per readable child of dirPath, in the order
// the filesystem enumerates them.
func (b *MenuBuilder) fromListing(ctx context.Context, dirPath string) (Menu, error) {
	dir, err := b.fs.Open(dirPath)
	if err != nil {
		return nil, fmt.Errorf("open directory %s: %w: %w", dirPath, ErrNotFound, err)
	}
	defer func() { _ = dir.Close() }()

	children, err := dir.Readdir(-1)
	if err != nil {
		return nil, fmt.Errorf("list directory %s: %w: %w", dirPath, ErrNotFound, err)
	}

	menu := make(Menu, 0, len(children))
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry, ok := b.listingEntry(dirPath, child)
		if ok {
			menu = append(menu, entry)
		}
	}

	return menu, nil
}

// listingEntry classifies one directory child. Children that cannot be
// stat'ed or opened, special files (FIFOs, sockets, devices), links
// leading out of the root, and names holding tabs or line breaks are
// skipped. Other control characters in the name are shown as spaces.
func (b *MenuBuilder) listingEntry(dirPath string, child os.FileInfo) (MenuEntry, bool) {
	name := child.Name()
	childPath := filepath.Join(dirPath, name)

	// Tabs and line breaks would split the menu line; such names cannot be
	// requested either.
	if strings.ContainsAny(name, "\t\r\n") {
		logger.Debug("Skipping %q: name contains a field or line separator", childPath)
		return MenuEntry{}, false
	}

	if child.Mode()&os.ModeSymlink != 0 {
		if _, err := b.resolver.Confine(b.fs, childPath); err != nil {
			logger.Debug("Skipping %s: %v", childPath, err)
			return MenuEntry{}, false
		}
	}

	// Stat follows symlinks so a link to a directory is listed as one.
	info, err := b.fs.Stat(childPath)
	if err != nil {
		logger.Debug("Skipping %s: %v", childPath, err)
		return MenuEntry{}, false
	}

	var tag TypeTag
	switch {
	case info.IsDir():
		if !b.listable(childPath) {
			logger.Debug("Skipping %s: directory not readable", childPath)
			return MenuEntry{}, false
		}
		tag = TypeDirectory
	case info.Mode().IsRegular():
		if !b.readable(childPath) {
			logger.Debug("Skipping %s: file not readable", childPath)
			return MenuEntry{}, false
		}
		tag = ClassifyByExtension(name)
	default:
		logger.Debug("Skipping %s: unsupported file mode %v", childPath, info.Mode())
		return MenuEntry{}, false
	}

	selector, err := b.resolver.SelectorFor(childPath)
	if err != nil {
		logger.Debug("Skipping %s: %v", childPath, err)
		return MenuEntry{}, false
	}

	return MenuEntry{
		Type:     tag,
		Display:  displayName(name),
		Selector: selector,
		Host:     b.host,
		Port:     b.port,
	}, true
}

// readable reports whether the process can open path for reading.
func (b *MenuBuilder) readable(path string) bool {
	f, err := b.fs.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// listable reports whether path is a directory the process can enumerate.
func (b *MenuBuilder) listable(path string) bool {
	f, err := b.fs.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	_, err = f.Readdirnames(1)
	return err == nil || errors.Is(err, io.EOF)
}
