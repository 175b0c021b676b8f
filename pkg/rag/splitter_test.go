package rag

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("word%03d", i)
	}
	return strings.Join(w, " ")
}

func TestNewSplitter_RejectsBadSizes(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap above size", 100, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSplitter(tc.size, tc.overlap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
		})
	}
}

func TestSplitText_ShortTextIsOneSegment(t *testing.T) {
	s, err := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	got := s.SplitText("  O gato subiu no telhado.  ")
	assert.Equal(t, []string{"O gato subiu no telhado."}, got)
}

func TestSplitText_EmptyText(t *testing.T) {
	s, err := NewSplitter(100, 10)
	require.NoError(t, err)
	assert.Empty(t, s.SplitText(""))
	assert.Empty(t, s.SplitText("   \n\n  "))
}

func TestSplitText_RespectsSizeAndOverlap(t *testing.T) {
	s, err := NewSplitter(100, 20)
	require.NoError(t, err)

	text := words(300)
	chunks := s.SplitText(text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100, "chunk %d too long", i)
	}
	for i := 1; i < len(chunks); i++ {
		first := strings.Fields(chunks[i])[0]
		assert.Contains(t, chunks[i-1], first, "chunk %d does not overlap the previous one", i)
	}

	// nenhuma palavra se perde
	joined := strings.Join(chunks, " ")
	for _, w := range strings.Fields(text) {
		assert.Contains(t, joined, w)
	}
}

func TestSplitText_PrefersParagraphs(t *testing.T) {
	s, err := NewSplitter(60, 0)
	require.NoError(t, err)

	p1 := "Primeiro paragrafo curto."
	p2 := "Segundo paragrafo, tambem curto."
	p3 := strings.Repeat("x", 40)
	chunks := s.SplitText(p1 + "\n\n" + p2 + "\n\n" + p3)

	require.Len(t, chunks, 2)
	assert.Equal(t, p1+"\n\n"+p2, chunks[0])
	assert.Equal(t, p3, chunks[1])
}

func TestSplitText_CutsInsideLongWords(t *testing.T) {
	s, err := NewSplitter(100, 0)
	require.NoError(t, err)

	chunks := s.SplitText(strings.Repeat("a", 250))
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
}

func TestSplitText_CountsRunes(t *testing.T) {
	s, err := NewSplitter(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("ação ", 60)
	for _, c := range s.SplitText(text) {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 50)
	}
}

func TestSplitDocuments_StableIDs(t *testing.T) {
	s, err := NewSplitter(100, 20)
	require.NoError(t, err)

	docs := []Document{
		{Content: words(60), Source: "https://example.com/a", Title: "A"},
		{Content: "curto", Source: "/tmp/b.pdf", Title: "B"},
	}
	first := s.SplitDocuments(docs)
	second := s.SplitDocuments(docs)
	require.Equal(t, first, second)

	seen := map[string]bool{}
	for _, seg := range first {
		assert.NotEmpty(t, seg.ID)
		assert.False(t, seen[seg.ID], "duplicate id %s", seg.ID)
		seen[seg.ID] = true
	}

	last := first[len(first)-1]
	assert.Equal(t, "/tmp/b.pdf", last.Source)
	assert.Equal(t, "B", last.Title)
	assert.Equal(t, 0, last.Index)
}

func TestSplitDocuments_SameSourceKeepsIDsDistinct(t *testing.T) {
	s, err := NewSplitter(100, 20)
	require.NoError(t, err)

	pages := []Document{
		{Content: "primeira página", Source: "/tmp/manual.pdf"},
		{Content: "segunda página", Source: "/tmp/manual.pdf"},
		{Content: "terceira página", Source: "/tmp/manual.pdf"},
	}
	segs := s.SplitDocuments(pages)
	require.Len(t, segs, 3)

	ids := map[string]bool{}
	for _, seg := range segs {
		assert.Equal(t, 0, seg.Index)
		ids[seg.ID] = true
	}
	assert.Len(t, ids, 3)
}
