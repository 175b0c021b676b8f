package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// VectorIndex holds segments and their embeddings for exact cosine search.
// Segments[i] pairs with Vectors[i].
type VectorIndex struct {
	Model     string
	Dimension int
	Segments  []Segment
	Vectors   [][]float32
	CreatedAt time.Time
}

func NewVectorIndex(model string) *VectorIndex {
	return &VectorIndex{Model: model, CreatedAt: time.Now().UTC()}
}

// Add appends segments with their vectors. All vectors must share one
// dimension.
func (x *VectorIndex) Add(segments []Segment, vectors [][]float32) error {
	if len(segments) != len(vectors) {
		return fmt.Errorf("index: %d segments but %d vectors", len(segments), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("index: empty vector for segment %d", i)
		}
		if x.Dimension == 0 {
			x.Dimension = len(v)
		}
		if len(v) != x.Dimension {
			return fmt.Errorf("index: vector %d has dimension %d, want %d", i, len(v), x.Dimension)
		}
	}
	x.Segments = append(x.Segments, segments...)
	x.Vectors = append(x.Vectors, vectors...)
	return nil
}

func (x *VectorIndex) Len() int { return len(x.Segments) }

func (x *VectorIndex) EmbeddingModel() string { return x.Model }

func (x *VectorIndex) Info(name string) IndexInfo {
	return IndexInfo{Name: name, Model: x.Model, Dimension: x.Dimension, Segments: x.Len()}
}

// Search ranks every segment by cosine similarity to vec. Ties keep
// insertion order.
func (x *VectorIndex) Search(_ context.Context, vec []float32, topK int) ([]ScoredSegment, error) {
	if x.Len() == 0 {
		return nil, nil
	}
	if len(vec) != x.Dimension {
		return nil, fmt.Errorf("index: query dimension %d, index dimension %d", len(vec), x.Dimension)
	}

	results := make([]ScoredSegment, len(x.Segments))
	for i := range x.Segments {
		results[i] = ScoredSegment{Segment: x.Segments[i], Score: CosineSimilarity(vec, x.Vectors[i])}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// CosineSimilarity returns a value in [-1, 1]; mismatched or zero vectors
// score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var (
	_ Searcher      = (*VectorIndex)(nil)
	_ ModelReporter = (*VectorIndex)(nil)
)
