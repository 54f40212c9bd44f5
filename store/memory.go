package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"studybuddy/types"
)

// MemoryStore is a brute-force cosine similarity index. Vectors are
// unit length, so similarity is a plain dot product. Scans are linear,
// which is plenty for a single session's corpus.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []types.Chunk
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Add(_ context.Context, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return errors.New("store: chunk without embedding")
		}
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vec []float32, k int) ([]types.ScoredChunk, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		k = 5
	}

	scored := make([]types.ScoredChunk, len(s.chunks))
	for i, c := range s.chunks {
		scored[i] = types.ScoredChunk{Chunk: c, Score: dot(c.Embedding, vec)}
	}
	// stable keeps insertion order on equal scores
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func dot(a []float32, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
