// Package pg is the managed vector store: Postgres with the pgvector extension,
// accessed through a bounded pgx pool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

// Options configure Open.
type Options struct {
	DSN         string
	MaxConns    int32
	MinConns    int32
	Dimensions  int  // provider dimension; checked against the column
	AutoMigrate bool // apply embedded migrations before probing
}

// Store implements store.VectorStore on Postgres + pgvector.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// Open connects, optionally migrates, and verifies the schema. A missing
// memories table is ErrSchemaMissing. An embedding column without a dimension
// is fixed to the provider's; one with a different dimension is
// ErrDimensionMismatch.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	if opts.AutoMigrate {
		v, err := MigrateUp(opts.DSN)
		if err != nil {
			return nil, err
		}
		slog.Info("postgres migrations applied", "version", v)
	}

	pool, err := OpenPool(ctx, opts.DSN, opts.MaxConns, opts.MinConns)
	if err != nil {
		return nil, err
	}

	colDims, err := probeSchema(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if colDims <= 0 && opts.Dimensions > 0 {
		if colDims, err = provisionDimensions(ctx, pool, opts.Dimensions); err != nil {
			pool.Close()
			return nil, err
		}
	}

	dims := colDims
	switch {
	case colDims <= 0:
		dims = opts.Dimensions
	case opts.Dimensions > 0 && opts.Dimensions != colDims:
		pool.Close()
		return nil, fmt.Errorf("%w: memories.embedding is vector(%d), provider produces %d",
			store.ErrDimensionMismatch, colDims, opts.Dimensions)
	}

	slog.Info("memory store opened", "backend", "postgres", "dimensions", dims)
	return &Store{pool: pool, dims: dims}, nil
}

func probeSchema(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var exists bool
	if err := pool.QueryRow(ctx, tableExistsQuery).Scan(&exists); err != nil {
		return 0, classify("probe", err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: table memories not found (run `memoria migrate up` or set database.auto_migrate)",
			store.ErrSchemaMissing)
	}

	var typmod int
	if err := pool.QueryRow(ctx, embeddingDimsQuery).Scan(&typmod); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: memories.embedding column not found", store.ErrSchemaMissing)
		}
		return 0, classify("probe", err)
	}
	return typmod, nil
}

// Pool exposes the pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Dimensions returns the embedding column dimension.
func (s *Store) Dimensions() int { return s.dims }

// Insert appends a memory row and returns its id.
func (s *Store) Insert(ctx context.Context, m store.NewMemory) (string, error) {
	if s.dims > 0 && len(m.Embedding) != s.dims {
		return "", store.NewStorageError("insert",
			fmt.Errorf("%w: got %d, want %d", store.ErrDimensionMismatch, len(m.Embedding), s.dims), false)
	}
	md, err := metadataJSON(m.Metadata)
	if err != nil {
		return "", store.NewStorageError("insert", err, false)
	}

	id := store.GenNewID()
	if _, err := s.pool.Exec(ctx, insertQuery,
		id.String(), m.ProjectID, m.Category, m.Content, pgvector.NewVector(m.Embedding), md,
	); err != nil {
		return "", classify("insert", err)
	}
	return id.String(), nil
}

// SimilaritySearch ranks the project's rows by cosine similarity.
func (s *Store) SimilaritySearch(ctx context.Context, embedding []float32, opts store.SearchOptions) ([]store.SearchResult, error) {
	if s.dims > 0 && len(embedding) != s.dims {
		return nil, store.NewStorageError("search",
			fmt.Errorf("%w: query has %d, store has %d", store.ErrDimensionMismatch, len(embedding), s.dims), false)
	}

	q, args := buildSearchQuery(pgvector.NewVector(embedding), opts)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify("search", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.SearchResult, error) {
		return scanSearchResult(row)
	})
	if err != nil {
		return nil, classify("search", err)
	}
	return results, nil
}

// List returns the project's rows newest first.
func (s *Store) List(ctx context.Context, opts store.ListOptions) ([]store.Memory, error) {
	q, args := buildListQuery(opts)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify("list", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Memory, error) {
		return scanMemory(row)
	})
	if err != nil {
		return nil, classify("list", err)
	}
	return out, nil
}

// DeleteByID deletes the row only when id and project both match. An id that
// is not a UUID cannot match any row and affects nothing.
func (s *Store) DeleteByID(ctx context.Context, id, projectID string) (int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, deleteQuery, id, projectID)
	if err != nil {
		return 0, classify("delete", err)
	}
	return tag.RowsAffected(), nil
}

// CountByProject returns the number of rows for projectID.
func (s *Store) CountByProject(ctx context.Context, projectID string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, countQuery, projectID).Scan(&n); err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
