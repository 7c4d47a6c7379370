package gopher

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/transform"
)

func TestLineEndingNormalizer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lf", "a\nb\n", "a\r\nb\r\n"},
		{"crlf untouched", "a\r\nb\r\n", "a\r\nb\r\n"},
		{"lone cr", "a\rb\r", "a\r\nb\r\n"},
		{"mixed", "a\nb\r\nc\rd", "a\r\nb\r\nc\r\nd\r\n"},
		{"unterminated final line", "hello", "hello\r\n"},
		{"blank lines", "\n\n", "\r\n\r\n"},
		{"cr then lf pairs", "\r\n\r\n", "\r\n\r\n"},
		{"cr cr lf", "a\r\r\nb", "a\r\n\r\nb\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := transform.String(NewLineEndingNormalizer(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLineEndingNormalizer_SplitCRLF(t *testing.T) {
	// One byte per read puts "\r" and "\n" in separate Transform calls.
	src := iotest.OneByteReader(strings.NewReader("one\r\ntwo\nthree\r"))
	out, err := io.ReadAll(transform.NewReader(src, NewLineEndingNormalizer()))

	require.NoError(t, err)
	assert.Equal(t, "one\r\ntwo\r\nthree\r\n", string(out))
}

func TestContentServer_Send(t *testing.T) {
	s := NewContentServer(afero.NewMemMapFs())
	ctx := context.Background()

	t.Run("text is normalized", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := s.Send(ctx, &buf, strings.NewReader("line one\nline two"), TypeText)
		require.NoError(t, err)
		assert.Equal(t, "line one\r\nline two\r\n", buf.String())
		assert.Equal(t, int64(buf.Len()), n)
	})

	t.Run("binary is raw", func(t *testing.T) {
		payload := []byte{0x00, '\n', 0xff, '\r', 'x'}
		var buf bytes.Buffer
		n, err := s.Send(ctx, &buf, bytes.NewReader(payload), TypeImage)
		require.NoError(t, err)
		assert.Equal(t, payload, buf.Bytes())
		assert.Equal(t, int64(len(payload)), n)
	})

	t.Run("cancelled context stops the copy", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		var buf bytes.Buffer
		_, err := s.Send(cancelled, &buf, strings.NewReader("data"), TypeBinary)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, buf.Len())
	})
}

func TestContentServer_OpenMissing(t *testing.T) {
	s := NewContentServer(afero.NewMemMapFs())

	_, err := s.Open("/does/not/exist")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
