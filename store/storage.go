package store

import (
	"context"
	"errors"
	"fmt"

	"studybuddy/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VectorStorer is one session's similarity index. Add inserts embedded
// chunks, Search returns the top-k nearest chunks by cosine similarity,
// Reset discards everything. The index is rebuilt wholesale on every
// upload; there is no incremental update path.
type VectorStorer interface {
	Add(ctx context.Context, chunks []types.Chunk) error
	Search(ctx context.Context, vec []float32, k int) ([]types.ScoredChunk, error)
	Reset(ctx context.Context) error
	Len() int
}

var ErrEmptyVector = errors.New("store: empty query vector")

// Factory creates one isolated VectorStorer per session. Indexes are
// never shared across sessions.
type Factory func(sessionID uuid.UUID) VectorStorer

// NewFactoryFromConfig selects the store backend: the in-memory index
// by default, or the pgvector-backed one when a pool is configured.
func NewFactoryFromConfig(ctx context.Context, cfg types.Config, connect func(context.Context) (*pgxpool.Pool, error)) (Factory, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return func(uuid.UUID) VectorStorer { return NewMemoryStore() }, func() {}, nil
	case "postgres":
		pool, err := connect(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("store: connect postgres: %w", err)
		}
		pg := NewPostgresStore(pool)
		if err := pg.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("store: create tables: %w", err)
		}
		return func(sessionID uuid.UUID) VectorStorer { return pg.ForSession(sessionID) }, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("store: unknown backend %q", cfg.StoreBackend)
	}
}
