package store

import "context"

// EmbeddingProvider generates vector embeddings for text.
// Dimensions is the fixed vector length the provider produces; stores check it.
type EmbeddingProvider interface {
	Name() string
	Model() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists memories and answers nearest-neighbour queries.
// Every read and delete is scoped by project ID.
type VectorStore interface {
	// Insert appends a new row and returns its generated ID. It never overwrites.
	Insert(ctx context.Context, m NewMemory) (string, error)

	// SimilaritySearch returns rows with similarity > opts.Threshold,
	// closest first, ties in insertion order, at most opts.Limit rows.
	SimilaritySearch(ctx context.Context, embedding []float32, opts SearchOptions) ([]SearchResult, error)

	// List returns rows newest first, skipping opts.Offset rows.
	List(ctx context.Context, opts ListOptions) ([]Memory, error)

	// DeleteByID removes the row only when both id and projectID match.
	// Returns the number of rows deleted (0 or 1).
	DeleteByID(ctx context.Context, id, projectID string) (int64, error)

	CountByProject(ctx context.Context, projectID string) (int64, error)

	// Dimensions returns the embedding size the schema was provisioned with.
	Dimensions() int

	Close() error
}
