package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"studybuddy/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps session indexes in a pgvector table. Rows are
// scoped by session id; a session rebuild deletes and reinserts its
// rows wholesale.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ConnectFromEnv builds the pool from the PG_* environment variables.
func ConnectFromEnv(ctx context.Context) (*pgxpool.Pool, error) {
	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := `
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS session_chunks (
        id UUID PRIMARY KEY,
        session_id UUID NOT NULL,
        doc_id UUID NOT NULL,
        doc_name TEXT NOT NULL,
        page INT NOT NULL,
        position INT NOT NULL,
        content TEXT NOT NULL,
        embedding vector(768)
    );

    CREATE INDEX IF NOT EXISTS idx_session_chunks_session ON session_chunks(session_id);
    `
	_, err := p.pool.Exec(ctx, query)
	return err
}

// ForSession returns a VectorStorer bound to one session's rows.
func (p *PostgresStore) ForSession(sessionID uuid.UUID) VectorStorer {
	return &sessionStore{pool: p.pool, sessionID: sessionID}
}

type sessionStore struct {
	pool      *pgxpool.Pool
	sessionID uuid.UUID

	mu    sync.RWMutex
	count int
}

func (s *sessionStore) Add(ctx context.Context, chunks []types.Chunk) error {
	query := `
    INSERT INTO session_chunks (id, session_id, doc_id, doc_name, page, position, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	for _, c := range chunks {
		_, err := s.pool.Exec(ctx, query,
			c.ID, s.sessionID, c.DocID, c.DocName, c.Page, c.Index, c.Content, pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.count += len(chunks)
	s.mu.Unlock()
	return nil
}

func (s *sessionStore) Search(ctx context.Context, vec []float32, k int) ([]types.ScoredChunk, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		k = 5
	}

	query := `
    SELECT id, doc_id, doc_name, page, position, content,
           1 - (embedding <=> $1) AS score
    FROM session_chunks
    WHERE session_id = $2 AND embedding IS NOT NULL
    ORDER BY embedding <=> $1, position
    LIMIT $3
    `
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vec), s.sessionID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var r types.ScoredChunk
		if err := rows.Scan(
			&r.Chunk.ID,
			&r.Chunk.DocID,
			&r.Chunk.DocName,
			&r.Chunk.Page,
			&r.Chunk.Index,
			&r.Chunk.Content,
			&r.Score,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("pgvector search", "session", s.sessionID, "hits", len(results))
	return results, nil
}

func (s *sessionStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM session_chunks WHERE session_id = $1", s.sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.count = 0
	s.mu.Unlock()
	return nil
}

func (s *sessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}
