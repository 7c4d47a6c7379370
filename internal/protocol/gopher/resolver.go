package gopher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// maxSymlinks bounds link expansion in Confine.
// kernels apply to path lookups.
const maxSymlinks = 255

// Resolver maps client selectors to filesystem paths under a fixed root.
//
// Containment is enforced in three steps: selectors carrying ".." segments
// or NUL bytes are rejected outright, every joined path is checked against
// the root after cleaning, and Confine checks the path again once symlinks
// have been followed.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver for root. The root is made absolute and
// cleaned; it does not need to exist yet.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		return nil, fmt.Errorf("gopher: empty root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("gopher: resolve root %q: %w", root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute serving root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the absolute path a selector refers to.
//
// Trailing CR/LF are stripped first. The empty selector and "/" both resolve
// to the root. Returns ErrPathEscape when the selector cannot be served
// without leaving the root.
func (r *Resolver) Resolve(selector string) (string, error) {
	selector = TrimSelector(selector)

	if strings.IndexByte(selector, 0) >= 0 {
		return "", fmt.Errorf("%w: NUL byte in selector", ErrPathEscape)
	}

	for _, segment := range strings.FieldsFunc(selector, isSeparator) {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrPathEscape, selector)
		}
	}

	// Leading separators make the selector relative to the root rather than
	// to the filesystem.
	rel := strings.TrimLeftFunc(filepath.FromSlash(selector), isSeparator)
	resolved := filepath.Join(r.root, rel)

	if !r.contains(resolved) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, selector)
	}
	return resolved, nil
}

// SelectorFor returns the selector a client should send to request path.
// The result always starts with "/" and uses forward slashes.
func (r *Resolver) SelectorFor(path string) (string, error) {
	rel, err := filepath.Rel(r.root, filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("gopher: selector for %q: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, path)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

func (r *Resolver) contains(path string) bool {
	return within(r.root, path)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Confine follows every symlink in path through fs and returns the real
// path. It returns ErrPathEscape when the real path is outside the real root.
//
// Components that do not exist are kept as they are. Filesystems without
// symlink support return path unchanged after the root check.
func (r *Resolver) Confine(fs afero.Fs, path string) (string, error) {
	realRoot, err := evalSymlinks(fs, r.root)
	if err != nil {
		return "", fmt.Errorf("gopher: resolve root %q: %w", r.root, err)
	}
	realPath, err := evalSymlinks(fs, path)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrPathEscape, path, err)
	}
	if !within(realRoot, realPath) {
		return "", fmt.Errorf("%w: %q links to %q", ErrPathEscape, path, realPath)
	}
	return realPath, nil
}

// evalSymlinks expands symlinks in the absolute path one component at a time
// using fs's Lstat and Readlink.
func evalSymlinks(fs afero.Fs, path string) (string, error) {
	lstater, ok := fs.(afero.Lstater)
	if !ok {
		return filepath.Clean(path), nil
	}
	reader, ok := fs.(afero.LinkReader)
	if !ok {
		return filepath.Clean(path), nil
	}

	volume := filepath.VolumeName(path)
	top := volume + string(filepath.Separator)
	resolved := top
	pending := splitPath(path[len(volume):])
	links := 0

	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]

		switch name {
		case ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, name)
		info, lstatCalled, err := lstater.LstatIfPossible(next)
		if errors.Is(err, os.ErrNotExist) {
			return filepath.Join(append([]string{next}, pending...)...), nil
		}
		if err != nil {
			return "", err
		}
		if !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		links++
		if links > maxSymlinks {
			return "", fmt.Errorf("too many links resolving %s", path)
		}
		target, err := reader.ReadlinkIfPossible(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			resolved = top
		}
		pending = append(splitPath(target), pending...)
	}

	return resolved, nil
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == filepath.Separator })
}

// TrimSelector strips the line terminator a client sends after a selector.
func TrimSelector(selector string) string {
	return strings.TrimRight(selector, "\r\n")
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
