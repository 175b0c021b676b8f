package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter breaks text into segments of at most ChunkSize characters, trying
// paragraph, line and word boundaries in that order before cutting inside a
// word. Consecutive segments share up to ChunkOverlap characters.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, Errorf(ErrConfiguration, "splitter", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, Errorf(ErrConfiguration, "splitter", "chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return &Splitter{ChunkSize: size, ChunkOverlap: overlap, Separators: defaultSeparators}, nil
}

// SplitDocuments splits every document and numbers the resulting segments
// per document. IDs also carry the document ordinal, so documents sharing a
// source (one per PDF page, say) never collide.
func (s *Splitter) SplitDocuments(docs []Document) []Segment {
	var out []Segment
	for n, d := range docs {
		for i, text := range s.SplitText(d.Content) {
			out = append(out, Segment{
				ID:      segmentID(d.Source, n, i),
				Content: text,
				Source:  d.Source,
				Title:   d.Title,
				Index:   i,
			})
		}
	}
	return out
}

func (s *Splitter) SplitText(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	return s.split(text, seps)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitOn(text, separator) {
		if runeLen(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, separator)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, separator)...)
	}
	return final
}

// merge greedily packs pieces into chunks, carrying a tail of the previous
// chunk forward as overlap.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var (
		docs    []string
		current []string
		total   int
	)
	joinCost := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		l := runeLen(p)
		if total+l+joinCost() > s.ChunkSize {
			if len(current) > 0 {
				if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
					docs = append(docs, doc)
				}
				for len(current) > 0 && (total > s.ChunkOverlap || total+l+joinCost() > s.ChunkSize) {
					drop := runeLen(current[0])
					if len(current) > 1 {
						drop += sepLen
					}
					total -= drop
					current = current[1:]
				}
			}
		}
		current = append(current, p)
		total += l
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, separator)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func segmentID(source string, doc, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d-%d", source, doc, i))).String()
}
