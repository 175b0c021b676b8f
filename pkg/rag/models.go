package rag

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultIndexName is used when the caller does not name an index.
const DefaultIndexName = "default"

// SourceKind diz de onde o conteúdo vem.
type SourceKind int

const (
	SourceURL SourceKind = iota + 1
	SourcePDF
)

func (k SourceKind) String() string {
	switch k {
	case SourceURL:
		return "url"
	case SourcePDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// Source is either a web page or a local PDF file. The zero value is not a
// valid source; build one with FromURL or FromPDF.
type Source struct {
	kind     SourceKind
	location string
}

func FromURL(rawURL string) Source {
	return Source{kind: SourceURL, location: strings.TrimSpace(rawURL)}
}

func FromPDF(path string) Source {
	return Source{kind: SourcePDF, location: strings.TrimSpace(path)}
}

func (s Source) Kind() SourceKind { return s.kind }
func (s Source) Location() string { return s.location }
func (s Source) IsZero() bool     { return s.kind == 0 }

func (s Source) String() string {
	if s.IsZero() {
		return "<no source>"
	}
	return s.kind.String() + ":" + s.location
}

// Validate checks that exactly one kind of source was supplied and that its
// location is usable.
func (s Source) Validate() error {
	switch s.kind {
	case SourceURL:
		u, err := url.Parse(s.location)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Errorf(ErrValidation, "source", "invalid url %q", s.location)
		}
	case SourcePDF:
		if s.location == "" {
			return Errorf(ErrValidation, "source", "pdf path is required")
		}
	default:
		return Errorf(ErrValidation, "source", "a url or a pdf path is required")
	}
	return nil
}

// Document is raw loaded content plus where it came from.
type Document struct {
	Content  string
	Source   string
	Title    string
	Metadata map[string]string
}

// Segment is a bounded, overlapping slice of a Document.
type Segment struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Source  string `json:"source"`
	Title   string `json:"title,omitempty"`
	Index   int    `json:"index"`
}

// ScoredSegment is a retrieval hit. Higher Score means more similar.
type ScoredSegment struct {
	Segment
	Score float32 `json:"score"`
}

// IndexInfo describes a persisted index.
type IndexInfo struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
	Segments  int    `json:"segments"`
}

func (i IndexInfo) String() string {
	return fmt.Sprintf("%s (model=%s dim=%d segments=%d)", i.Name, i.Model, i.Dimension, i.Segments)
}
