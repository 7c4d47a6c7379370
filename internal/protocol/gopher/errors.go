package gopher

import "errors"

var (
	// ErrNotFound is returned when a selector does not name a servable file
	// or directory. Unreadable and special files are reported the same way so
	// clients cannot map out permissions.
	ErrNotFound = errors.New("gopher: selector not found")

	// ErrPathEscape is returned by the resolver for selectors that would leave
	// the serving root. Detected before any filesystem access.
	ErrPathEscape = errors.New("gopher: selector escapes root")
)
