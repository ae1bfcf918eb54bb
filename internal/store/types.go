package store

import (
	"time"

	"github.com/google/uuid"
)

// GenNewID generates a new UUID v7 (time-ordered).
// Both backends rely on the ordering for the insertion-order tie-break.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Metadata is an opaque key→value bag attached to a memory.
// It is stored and returned verbatim and never queried.
type Metadata map[string]any

// Memory is a stored text snippet scoped to a project.
// The embedding is never part of the read model.
type Memory struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMemory is the write model handed to VectorStore.Insert.
// Embedding must have been computed from Content by the caller.
type NewMemory struct {
	ProjectID string
	Category  string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// SearchResult is a memory paired with its cosine similarity to the query.
type SearchResult struct {
	Memory
	Similarity float64 `json:"similarity"`
}

// SearchOptions scopes a similarity search.
type SearchOptions struct {
	ProjectID string
	Category  string  // "" = any category
	Limit     int
	Threshold float64 // results must have similarity strictly greater than this
}

// ListOptions scopes a chronological listing.
type ListOptions struct {
	ProjectID string
	Category  string // "" = any category
	Limit     int
	Offset    int
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is "postgres" (managed) or "sqlite" (standalone).
	Backend string

	// PostgresDSN is the Postgres connection string (backend=postgres).
	PostgresDSN string

	// SQLitePath is the database file path (backend=sqlite).
	SQLitePath string

	// MaxConns bounds the shared connection pool. Excess acquisitions wait.
	MaxConns int32
	MinConns int32

	// AutoMigrate applies embedded migrations when the schema is missing.
	AutoMigrate bool

	// Dimensions is the embedding size declared by the provider in use.
	Dimensions int
}

// IsManaged returns true if the Postgres backend is selected.
func (c StoreConfig) IsManaged() bool {
	return c.Backend == "postgres"
}
