package gopher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	r, err := NewResolver(root)
	require.NoError(t, err)
	return r, r.Root()
}

func TestResolve(t *testing.T) {
	r, root := newTestResolver(t)

	tests := []struct {
		name     string
		selector string
		want     string
	}{
		{"empty selector is root", "", root},
		{"slash is root", "/", root},
		{"crlf stripped", "/docs/a.txt\r\n", filepath.Join(root, "docs", "a.txt")},
		{"lf stripped", "docs\n", filepath.Join(root, "docs")},
		{"relative selector", "docs/a.txt", filepath.Join(root, "docs", "a.txt")},
		{"absolute selector stays under root", "/etc/passwd", filepath.Join(root, "etc", "passwd")},
		{"duplicate slashes", "//docs///a.txt", filepath.Join(root, "docs", "a.txt")},
		{"dot segments", "/./docs/./a.txt", filepath.Join(root, "docs", "a.txt")},
		{"dotted names are fine", "/..hidden/file..txt", filepath.Join(root, "..hidden", "file..txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_RejectsEscapes(t *testing.T) {
	r, root := newTestResolver(t)

	for _, selector := range []string{
		"../../etc/passwd",
		"/../../etc/passwd",
		"docs/../../etc/passwd",
		"docs/..",
		"..",
		`..\..\windows`,
		"docs/\x00/a.txt",
	} {
		t.Run(selector, func(t *testing.T) {
			got, err := r.Resolve(selector)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPathEscape))
			assert.Empty(t, got)
		})
	}

	// Whatever resolves must stay inside the root.
	for _, selector := range []string{"/a", "a/b/c", "/x/./y", "...", "/...."} {
		got, err := r.Resolve(selector)
		require.NoError(t, err)
		assert.True(t, got == root || strings.HasPrefix(got, root+string(filepath.Separator)), got)
	}
}

func TestSelectorFor(t *testing.T) {
	r, root := newTestResolver(t)

	sel, err := r.SelectorFor(filepath.Join(root, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/docs/a.txt", sel)

	sel, err = r.SelectorFor(root)
	require.NoError(t, err)
	assert.Equal(t, "/", sel)

	_, err = r.SelectorFor(filepath.Dir(root))
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestNewResolver_EmptyRoot(t *testing.T) {
	_, err := NewResolver("")
	assert.Error(t, err)
}

func TestConfine(t *testing.T) {
	root, _ := newLinkTree(t)
	r, err := NewResolver(root)
	require.NoError(t, err)
	fs := afero.NewReadOnlyFs(afero.NewOsFs())

	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"root", root, realRoot},
		{"plain file", filepath.Join(root, "real", "x.txt"), filepath.Join(realRoot, "real", "x.txt")},
		{"absolute link inside", filepath.Join(root, "linked", "x.txt"), filepath.Join(realRoot, "real", "x.txt")},
		{"relative link inside", filepath.Join(root, "relative.txt"), filepath.Join(realRoot, "real", "x.txt")},
		{"missing path", filepath.Join(root, "nope", "a.txt"), filepath.Join(realRoot, "nope", "a.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Confine(fs, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, path := range []string{
		filepath.Join(root, "escape"),
		filepath.Join(root, "escape", "secret.txt"),
		filepath.Join(root, "secret.txt"),
		filepath.Join(root, "real", "up", "secret.txt"),
		filepath.Join(root, "linked", "up"),
	} {
		t.Run(path, func(t *testing.T) {
			_, err := r.Confine(fs, path)
			assert.ErrorIs(t, err, ErrPathEscape)
		})
	}
}

func TestConfine_LinkLoop(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Symlink("b", filepath.Join(root, "a")))
	require.NoError(t, os.Symlink("a", filepath.Join(root, "b")))

	r, err := NewResolver(root)
	require.NoError(t, err)

	_, err = r.Confine(afero.NewReadOnlyFs(afero.NewOsFs()), filepath.Join(root, "a"))
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestConfine_WithoutSymlinkSupport(t *testing.T) {
	r, err := NewResolver(testRoot)
	require.NoError(t, err)

	got, err := r.Confine(afero.NewMemMapFs(), filepath.Join(testRoot, "a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(testRoot, "a", "b.txt"), got)
}
