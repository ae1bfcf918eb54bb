// Package memory implements the memory service: it validates caller input,
// embeds content and queries, and delegates to a store.VectorStore. The
// service holds no rows of its own; every read round-trips to the store.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/memoria/internal/store"
	"github.com/nextlevelbuilder/memoria/internal/tracing"
)

// Service orchestrates embedding generation and vector store calls.
// It is stateless and safe for concurrent use.
type Service struct {
	store    store.VectorStore
	provider store.EmbeddingProvider
}

// NewService wires a store and an embedding provider.
func NewService(vs store.VectorStore, provider store.EmbeddingProvider) *Service {
	return &Service{store: vs, provider: provider}
}

// StoreRequest is the input of Store.
type StoreRequest struct {
	Content   string
	Category  string
	ProjectID string
	Metadata  store.Metadata
}

// SearchRequest is the input of Search. Nil Limit/Threshold take the defaults (5, 0.5).
type SearchRequest struct {
	Query     string
	ProjectID string
	Category  string
	Limit     *int
	Threshold *float64
}

// ListRequest is the input of List. Nil Limit/Offset take the defaults (20, 0).
type ListRequest struct {
	ProjectID string
	Category  string
	Limit     *int
	Offset    *int
}

// Stats summarises a project.
type Stats struct {
	TotalMemories int64 `json:"total_memories"`
}

// Store embeds the content and appends a new memory. Nothing is written when
// validation or embedding fails.
func (s *Service) Store(ctx context.Context, req StoreRequest) (id string, err error) {
	ctx, span := tracing.StartSpan(ctx, "memory.store",
		tracing.AttrProjectID.String(req.ProjectID),
		tracing.AttrCategory.String(req.Category),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := store.ValidateContent("content", req.Content); err != nil {
		return "", err
	}
	if err := store.ValidateRequired("category", req.Category); err != nil {
		return "", err
	}
	if err := store.ValidateRequired("project_id", req.ProjectID); err != nil {
		return "", err
	}
	if err := store.ValidateMetadata(req.Metadata); err != nil {
		return "", err
	}

	vec, err := s.embed(ctx, req.Content)
	if err != nil {
		return "", err
	}

	start := time.Now()
	id, err = s.store.Insert(ctx, store.NewMemory{
		ProjectID: req.ProjectID,
		Category:  req.Category,
		Content:   req.Content,
		Embedding: vec,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return "", err
	}
	span.SetAttributes(tracing.AttrMemoryID.String(id))

	slog.Debug("memory stored",
		"id", id,
		"project", req.ProjectID,
		"category", req.Category,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return id, nil
}

// Search returns the memories closest to the query, most similar first.
func (s *Service) Search(ctx context.Context, req SearchRequest) (results []store.SearchResult, err error) {
	limit := store.DefaultSearchLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	threshold := store.DefaultSearchThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	ctx, span := tracing.StartSpan(ctx, "memory.search",
		tracing.AttrProjectID.String(req.ProjectID),
		tracing.AttrCategory.String(req.Category),
		tracing.AttrLimit.Int(limit),
		tracing.AttrThreshold.Float64(threshold),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := store.ValidateContent("query", req.Query); err != nil {
		return nil, err
	}
	if err := store.ValidateRequired("project_id", req.ProjectID); err != nil {
		return nil, err
	}
	if err := store.ValidateCategoryFilter(req.Category); err != nil {
		return nil, err
	}
	if err := store.ValidateSearchLimit(limit); err != nil {
		return nil, err
	}
	if err := store.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	vec, err := s.embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	results, err = s.store.SimilaritySearch(ctx, vec, store.SearchOptions{
		ProjectID: req.ProjectID,
		Category:  req.Category,
		Limit:     limit,
		Threshold: threshold,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.AttrResultCount.Int(len(results)))
	return results, nil
}

// List returns a project's memories newest first. No embedding is computed.
func (s *Service) List(ctx context.Context, req ListRequest) (memories []store.Memory, err error) {
	limit := store.DefaultListLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	offset := 0
	if req.Offset != nil {
		offset = *req.Offset
	}

	ctx, span := tracing.StartSpan(ctx, "memory.list",
		tracing.AttrProjectID.String(req.ProjectID),
		tracing.AttrCategory.String(req.Category),
		tracing.AttrLimit.Int(limit),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := store.ValidateRequired("project_id", req.ProjectID); err != nil {
		return nil, err
	}
	if err := store.ValidateCategoryFilter(req.Category); err != nil {
		return nil, err
	}
	if err := store.ValidateListWindow(limit, offset); err != nil {
		return nil, err
	}

	memories, err = s.store.List(ctx, store.ListOptions{
		ProjectID: req.ProjectID,
		Category:  req.Category,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.AttrResultCount.Int(len(memories)))
	return memories, nil
}

// Delete removes a memory owned by projectID. It returns false, with no error,
// when the memory does not exist or belongs to another project; the two cases
// are indistinguishable.
func (s *Service) Delete(ctx context.Context, memoryID, projectID string) (deleted bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "memory.delete",
		tracing.AttrProjectID.String(projectID),
		tracing.AttrMemoryID.String(memoryID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := store.ValidateRequired("memory_id", memoryID); err != nil {
		return false, err
	}
	if err := store.ValidateRequired("project_id", projectID); err != nil {
		return false, err
	}

	n, err := s.store.DeleteByID(ctx, memoryID, projectID)
	if err != nil {
		return false, err
	}
	span.SetAttributes(tracing.AttrResultCount.Int64(n))
	if n > 0 {
		slog.Debug("memory deleted", "id", memoryID, "project", projectID)
	}
	return n > 0, nil
}

// Stats returns the number of memories stored for projectID.
func (s *Service) Stats(ctx context.Context, projectID string) (st Stats, err error) {
	ctx, span := tracing.StartSpan(ctx, "memory.stats",
		tracing.AttrProjectID.String(projectID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := store.ValidateRequired("project_id", projectID); err != nil {
		return Stats{}, err
	}
	n, err := s.store.CountByProject(ctx, projectID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalMemories: n}, nil
}

// embed computes one vector and checks it against the store's dimension.
// Provider failures and unusable vectors are EmbeddingErrors; a length that
// differs from the provisioned schema is a non-retryable StorageError.
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	if s.provider == nil {
		return nil, &store.EmbeddingError{Err: fmt.Errorf("no embedding provider configured")}
	}

	vecs, err := s.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, &store.EmbeddingError{Err: err}
	}
	if len(vecs) != 1 {
		return nil, &store.EmbeddingError{Err: fmt.Errorf("provider %s returned %d vectors for 1 input", s.provider.Name(), len(vecs))}
	}
	vec := vecs[0]
	if !store.ValidVector(vec) {
		return nil, &store.EmbeddingError{Err: fmt.Errorf("provider %s returned an empty or non-finite vector", s.provider.Name())}
	}

	if want := s.store.Dimensions(); want > 0 && len(vec) != want {
		return nil, store.NewStorageError("embed",
			fmt.Errorf("%w: model %s produced %d dimensions, store expects %d",
				store.ErrDimensionMismatch, s.provider.Model(), len(vec), want),
			false)
	}
	return vec, nil
}
