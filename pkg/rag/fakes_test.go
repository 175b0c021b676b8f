package rag_test

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

const fakeDim = 256

// hashEmbedder maps each word to a bucket, so texts sharing words end up
// close together.
type hashEmbedder struct {
	model string
	calls atomic.Int32
	err   error
}

func (e *hashEmbedder) Model() string {
	if e.model == "" {
		return "fake-embedding"
	}
	return e.model
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, fakeDim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
			v[h.Sum32()%fakeDim]++
		}
		v[fakeDim-1] += 0.01
		out[i] = v
	}
	return out, nil
}

type mapLoader struct {
	docs  map[string]string
	calls atomic.Int32
}

func (l *mapLoader) Load(_ context.Context, src rag.Source) ([]rag.Document, error) {
	l.calls.Add(1)
	text, ok := l.docs[src.Location()]
	if !ok {
		return nil, errors.New("not found: " + src.Location())
	}
	return []rag.Document{{Content: text, Source: src.Location(), Title: "doc"}}, nil
}

type mockChat struct {
	mock.Mock
}

func (m *mockChat) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}
