// Package sqlite is the standalone vector store: a single SQLite file with
// embeddings stored as JSON and cosine similarity computed in Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

// Store implements store.VectorStore on SQLite.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	dims int
}

// Open opens (or creates) a SQLite database at dbPath and initializes the
// schema. dims is the provider's embedding size; it is recorded on first
// open and must match on every later open.
func Open(ctx context.Context, dbPath string, dims int, maxConns int) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.loadDimensions(ctx, dims); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("memory store opened", "backend", "sqlite", "path", dbPath, "dimensions", s.dims)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		// seq is AUTOINCREMENT so it is never reused and tracks insertion order.
		`CREATE TABLE IF NOT EXISTS memories (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			project_id TEXT NOT NULL,
			category TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_project_category ON memories(project_id, category)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_project_created ON memories(project_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (s *Store) loadDimensions(ctx context.Context, dims int) error {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = 'dimensions'").Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if dims <= 0 {
			return fmt.Errorf("sqlite store: embedding dimensions unknown (empty database and no provider dimension)")
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO store_meta (key, value) VALUES ('dimensions', ?)", strconv.Itoa(dims)); err != nil {
			return fmt.Errorf("record dimensions: %w", err)
		}
		s.dims = dims
		return nil
	case err != nil:
		return fmt.Errorf("read dimensions: %w", err)
	}

	stored, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("corrupt store_meta dimensions %q: %w", raw, err)
	}
	if dims > 0 && dims != stored {
		return fmt.Errorf("%w: database provisioned for %d dimensions, provider produces %d",
			store.ErrDimensionMismatch, stored, dims)
	}
	s.dims = stored
	return nil
}

// Dimensions returns the embedding size recorded for this database.
func (s *Store) Dimensions() int { return s.dims }

// Insert appends a memory row.
func (s *Store) Insert(ctx context.Context, m store.NewMemory) (string, error) {
	if len(m.Embedding) != s.dims {
		return "", store.NewStorageError("insert",
			fmt.Errorf("%w: got %d, want %d", store.ErrDimensionMismatch, len(m.Embedding), s.dims), false)
	}

	embJSON, err := json.Marshal(m.Embedding)
	if err != nil {
		return "", store.NewStorageError("insert", fmt.Errorf("marshal embedding: %w", err), false)
	}
	mdJSON, err := marshalMetadata(m.Metadata)
	if err != nil {
		return "", store.NewStorageError("insert", err, false)
	}

	id := store.GenNewID().String()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, project_id, category, content, embedding, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, m.ProjectID, m.Category, m.Content, string(embJSON), mdJSON, now.UnixMicro())
	if err != nil {
		return "", storageErr("insert", err)
	}
	return id, nil
}

// SimilaritySearch scores every row of the project (and category) in Go.
func (s *Store) SimilaritySearch(ctx context.Context, embedding []float32, opts store.SearchOptions) ([]store.SearchResult, error) {
	if len(embedding) != s.dims {
		return nil, store.NewStorageError("search",
			fmt.Errorf("%w: query has %d, store has %d", store.ErrDimensionMismatch, len(embedding), s.dims), false)
	}

	where, args := filterClause(opts.ProjectID, opts.Category)
	q := `SELECT id, project_id, category, content, embedding, metadata, created_at
		FROM memories WHERE ` + where + ` ORDER BY seq ASC`

	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.mu.RUnlock()
		return nil, storageErr("search", err)
	}

	var results []store.SearchResult
	for rows.Next() {
		var (
			m       store.Memory
			embJSON string
			mdJSON  string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Category, &m.Content, &embJSON, &mdJSON, &created); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return nil, storageErr("search", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return nil, store.NewStorageError("search", fmt.Errorf("corrupt embedding for %s: %w", m.ID, err), false)
		}
		if len(vec) != s.dims {
			rows.Close()
			s.mu.RUnlock()
			return nil, store.NewStorageError("search",
				fmt.Errorf("%w: row %s has %d", store.ErrDimensionMismatch, m.ID, len(vec)), false)
		}

		sim := store.CosineSimilarity(embedding, vec)
		if !store.PassesThreshold(sim, opts.Threshold) {
			continue
		}
		m.Metadata = unmarshalMetadata(mdJSON)
		m.CreatedAt = time.UnixMicro(created).UTC()
		results = append(results, store.SearchResult{Memory: m, Similarity: sim})
	}
	err = rows.Err()
	rows.Close()
	s.mu.RUnlock()
	if err != nil {
		return nil, storageErr("search", err)
	}

	// Rows arrive in insertion order; a stable sort keeps that order for ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// List returns rows newest first; seq breaks created_at ties so pages are stable.
func (s *Store) List(ctx context.Context, opts store.ListOptions) ([]store.Memory, error) {
	where, args := filterClause(opts.ProjectID, opts.Category)
	args = append(args, opts.Limit, opts.Offset)
	q := `SELECT id, project_id, category, content, metadata, created_at
		FROM memories WHERE ` + where + `
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()

	var out []store.Memory
	for rows.Next() {
		var (
			m       store.Memory
			mdJSON  string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Category, &m.Content, &mdJSON, &created); err != nil {
			return nil, storageErr("list", err)
		}
		m.Metadata = unmarshalMetadata(mdJSON)
		m.CreatedAt = time.UnixMicro(created).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return out, nil
}

// DeleteByID deletes only when both id and project match.
func (s *Store) DeleteByID(ctx context.Context, id, projectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ? AND project_id = ?", id, projectID)
	if err != nil {
		return 0, storageErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete", err)
	}
	return n, nil
}

// CountByProject returns the number of stored memories for a project.
func (s *Store) CountByProject(ctx context.Context, projectID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE project_id = ?", projectID).Scan(&count); err != nil {
		return 0, storageErr("count", err)
	}
	return count, nil
}

// Close closes the SQLite database.
func (s *Store) Close() error {
	return s.db.Close()
}

func filterClause(projectID, category string) (string, []any) {
	if category != "" {
		return "project_id = ? AND category = ?", []any{projectID, category}
	}
	return "project_id = ?", []any{projectID}
}

func marshalMetadata(md store.Metadata) (string, error) {
	if md == nil {
		return "{}", nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(raw string) store.Metadata {
	if raw == "" || raw == "{}" {
		return nil
	}
	md, err := store.DecodeMetadata([]byte(raw))
	if err != nil {
		slog.Warn("sqlite: unreadable metadata", "error", err)
		return nil
	}
	return md
}

// storageErr wraps a driver error. Busy/locked databases and cancelled
// contexts are retryable; everything else is reported as-is.
func storageErr(op string, err error) *store.StorageError {
	retryable := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") {
		retryable = true
	}
	return store.NewStorageError(op, err, retryable)
}
