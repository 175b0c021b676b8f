// Package loader fetches documents from web pages and PDF files.
package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 10 << 20
	userAgent       = "doc-qa-rag/1.0"
)

// Loader implements rag.DocumentLoader for URL and PDF sources.
type Loader struct {
	client   *http.Client
	maxBytes int64
}

type Option func(*Loader)

// WithHTTPClient replaces the client used for URL sources.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithMaxBytes caps how much of a page body is read.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

func New(opts ...Option) *Loader {
	l := &Loader{
		client:   &http.Client{Timeout: defaultTimeout},
		maxBytes: defaultMaxBytes,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Loader) Load(ctx context.Context, src rag.Source) ([]rag.Document, error) {
	switch src.Kind() {
	case rag.SourceURL:
		return l.loadURL(ctx, src.Location())
	case rag.SourcePDF:
		return loadPDF(ctx, src.Location())
	default:
		return nil, rag.Errorf(rag.ErrValidation, "load", "unsupported source %s", src)
	}
}

func sourceError(format string, args ...any) error {
	return rag.Errorf(rag.ErrSource, "load", format, args...)
}

// remove bytes inválidos para UTF-8
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}

func cleanText(s string) string {
	return strings.TrimSpace(sanitizeUTF8(s))
}

var _ rag.DocumentLoader = (*Loader)(nil)

func wrapSource(what string, err error) error {
	return rag.Wrap(rag.ErrSource, "load", fmt.Errorf("%s: %w", what, err))
}
