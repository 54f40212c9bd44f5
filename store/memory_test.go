package store

import (
	"context"
	"testing"

	"studybuddy/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkWithVec(name string, vec []float32) types.Chunk {
	return types.Chunk{
		ID:        uuid.New(),
		DocName:   name,
		Content:   name,
		Embedding: vec,
	}
}

func TestMemoryStoreSelfRetrieval(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	target := []float32{1, 0, 0}
	require.NoError(t, s.Add(ctx, []types.Chunk{
		chunkWithVec("photosynthesis", target),
		chunkWithVec("mitosis", []float32{0, 1, 0}),
		chunkWithVec("osmosis", []float32{0, 0, 1}),
	}))

	hits, err := s.Search(ctx, target, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "photosynthesis", hits[0].Chunk.Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestMemoryStoreOrdersByScore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Add(ctx, []types.Chunk{
		chunkWithVec("far", []float32{0, 1, 0}),
		chunkWithVec("near", []float32{0.8, 0.6, 0}),
		chunkWithVec("exact", []float32{1, 0, 0}),
	}))

	hits, err := s.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "exact", hits[0].Chunk.Content)
	assert.Equal(t, "near", hits[1].Chunk.Content)
	assert.Equal(t, "far", hits[2].Chunk.Content)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
}

func TestMemoryStoreStableTieBreak(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// identical vectors, insertion order decides
	vec := []float32{0.6, 0.8}
	require.NoError(t, s.Add(ctx, []types.Chunk{
		chunkWithVec("first", vec),
		chunkWithVec("second", vec),
		chunkWithVec("third", vec),
	}))

	hits, err := s.Search(ctx, vec, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "first", hits[0].Chunk.Content)
	assert.Equal(t, "second", hits[1].Chunk.Content)
	assert.Equal(t, "third", hits[2].Chunk.Content)
}

func TestMemoryStoreClampsK(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Add(ctx, []types.Chunk{
		chunkWithVec("only", []float32{1, 0}),
	}))

	hits, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemoryStoreRejectsEmptyQuery(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Search(context.Background(), nil, 5)
	require.ErrorIs(t, err, ErrEmptyVector)
}

func TestMemoryStoreRejectsChunkWithoutEmbedding(t *testing.T) {
	s := NewMemoryStore()
	err := s.Add(context.Background(), []types.Chunk{{ID: uuid.New(), Content: "bare"}})
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreReset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Add(ctx, []types.Chunk{chunkWithVec("gone", []float32{1})}))
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, 0, s.Len())

	hits, err := s.Search(ctx, []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
