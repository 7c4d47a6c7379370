package gopher

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/text/transform"
)

// ContentServer streams regular files to clients.
//
// Text files (by extension) are rewritten so every line ends in CRLF,
// whatever the source used. Everything else is sent byte for byte.
type ContentServer struct {
	fs afero.Fs
}

// NewContentServer creates a ContentServer reading through fs.
func NewContentServer(fs afero.Fs) *ContentServer {
	return &ContentServer{fs: fs}
}

// Open opens path for streaming. Opening is separate from Send so a failure
// can still be answered with a not-found line before any byte is written.
func (s *ContentServer) Open(path string) (afero.File, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, ErrNotFound, err)
	}
	return f, nil
}

// Send copies f to w and returns the number of bytes written.
//
// When tag is TypeText the stream goes through a line-ending normalizer.
// The copy stops early if ctx is cancelled.
func (s *ContentServer) Send(ctx context.Context, w io.Writer, f io.Reader, tag TypeTag) (int64, error) {
	var src io.Reader = &contextReader{ctx: ctx, r: f}
	if tag == TypeText {
		src = transform.NewReader(src, NewLineEndingNormalizer())
	}

	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("send content: %w", err)
	}
	return n, nil
}

// contextReader fails reads once its context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// lineEndingNormalizer rewrites LF, CRLF and lone CR line breaks to CRLF and
// terminates a final unterminated line.
type lineEndingNormalizer struct {
	// afterCR is set when the last byte consumed was '\r', so a following
	// '\n' belongs to the same line break.
	afterCR bool

	// midLine is set when bytes have been emitted since the last line break.
	midLine bool
}

// NewLineEndingNormalizer returns a transformer producing CRLF line endings.
func NewLineEndingNormalizer() transform.Transformer {
	return &lineEndingNormalizer{}
}

func (t *lineEndingNormalizer) Reset() {
	*t = lineEndingNormalizer{}
}

func (t *lineEndingNormalizer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		switch c {
		case '\r':
			if nDst+2 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst], dst[nDst+1] = '\r', '\n'
			nDst += 2
			t.afterCR, t.midLine = true, false

		case '\n':
			if !t.afterCR {
				if nDst+2 > len(dst) {
					return nDst, nSrc, transform.ErrShortDst
				}
				dst[nDst], dst[nDst+1] = '\r', '\n'
				nDst += 2
			}
			t.afterCR, t.midLine = false, false

		default:
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			t.afterCR, t.midLine = false, true
		}
		nSrc++
	}

	if atEOF && t.midLine {
		if nDst+2 > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst], dst[nDst+1] = '\r', '\n'
		nDst += 2
		t.midLine = false
	}

	return nDst, nSrc, nil
}
