package types

import (
	"time"

	"github.com/google/uuid"
)

// Document is one uploaded file after page extraction.
type Document struct {
	ID        uuid.UUID
	Name      string
	Pages     []Page
	CreatedAt time.Time
}

// Page is the page-level extraction unit. Immutable once created.
type Page struct {
	DocID   uuid.UUID
	DocName string
	Number  int // 1-based page number within the document
	Content string
}

// Chunk is the unit of embedding and retrieval. Keeps a back reference
// to its source page so answers stay traceable.
type Chunk struct {
	ID        uuid.UUID
	DocID     uuid.UUID
	DocName   string
	Page      int
	Index     int // position in the whole corpus, insertion order
	Content   string
	Embedding []float32
}

// ScoredChunk is a retrieval hit with its similarity score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one entry of the append-only session history.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Ordinal   int       `json:"ordinal"`
	CreatedAt time.Time `json:"created_at"`
}

// CorpusSummary describes what was uploaded, for the prompt and the UI.
type CorpusSummary struct {
	DocumentNames []string
	PageCount     int
	Sample        string
}

func (s CorpusSummary) Empty() bool {
	return len(s.DocumentNames) == 0
}

// Config carries the tunables assembled from the environment at boot.
type Config struct {
	ServerAddr   string
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	Temperature  float32
	StoreBackend string // "memory" or "postgres"
	ParserURL    string // document conversion endpoint, empty disables PDF uploads
}
