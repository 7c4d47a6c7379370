// Package gopher implements the request-handling core of an RFC 1436 Gopher
// server.
//
// # Architecture Overview
//
// A Gopher exchange is one-shot: the client sends a single selector line and
// the server answers with either a file or a menu, then closes the
// connection. This package owns everything between "selector read" and
// "response written":
//
//   - Type registry (types.go): item type codes and extension classification
//   - Path resolution (resolver.go): selector to filesystem path under the root
//   - Menus (menu.go, gophermap.go, builder.go): gophermap parsing and
//     directory listings
//   - Content (content.go): raw and line-ending-normalized file streaming
//   - Dispatch (handler.go): stat, route and frame the response
//
// Network concerns (listening, deadlines, connection limits) live in
// pkg/adapter/gopher.
//
// # Thread Safety
//
// A Handler holds only immutable configuration and a read-only filesystem.
// It is safe to call Serve from any number of connection goroutines.
package gopher
