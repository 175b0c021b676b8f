package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(id string) Segment {
	return Segment{ID: id, Content: "content " + id, Source: "src"}
}

func TestVectorIndex_AddValidates(t *testing.T) {
	idx := NewVectorIndex("m")

	err := idx.Add([]Segment{seg("a")}, nil)
	require.Error(t, err)

	err = idx.Add([]Segment{seg("a"), seg("b")}, [][]float32{{1, 0}, {1, 0, 0}})
	require.Error(t, err)

	require.NoError(t, idx.Add([]Segment{seg("a")}, [][]float32{{1, 0}}))
	assert.Equal(t, 2, idx.Dimension)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, IndexInfo{Name: "x", Model: "m", Dimension: 2, Segments: 1}, idx.Info("x"))
}

func TestVectorIndex_SearchRanksByCosine(t *testing.T) {
	idx := NewVectorIndex("m")
	require.NoError(t, idx.Add(
		[]Segment{seg("east"), seg("north"), seg("northeast")},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	))

	hits, err := idx.Search(context.Background(), []float32{0.9, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "east", hits[0].ID)
	assert.Equal(t, "northeast", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestVectorIndex_SearchTiesKeepInsertionOrder(t *testing.T) {
	idx := NewVectorIndex("m")
	require.NoError(t, idx.Add(
		[]Segment{seg("a"), seg("b"), seg("c")},
		[][]float32{{1, 0}, {2, 0}, {3, 0}},
	))

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestVectorIndex_SearchBounds(t *testing.T) {
	empty := NewVectorIndex("m")
	hits, err := empty.Search(context.Background(), []float32{1}, 4)
	require.NoError(t, err)
	assert.Empty(t, hits)

	idx := NewVectorIndex("m")
	require.NoError(t, idx.Add([]Segment{seg("a")}, [][]float32{{1, 0}}))

	hits, err = idx.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
}
