package tools

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/memoria/internal/memory"
	"github.com/nextlevelbuilder/memoria/internal/store"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

// MemoryService is the subset of memory.Service the tools call.
type MemoryService interface {
	Store(ctx context.Context, req memory.StoreRequest) (string, error)
	Search(ctx context.Context, req memory.SearchRequest) ([]store.SearchResult, error)
	List(ctx context.Context, req memory.ListRequest) ([]store.Memory, error)
	Delete(ctx context.Context, memoryID, projectID string) (bool, error)
	Stats(ctx context.Context, projectID string) (memory.Stats, error)
}

// RegisterMemoryTools registers the five memory tools on reg.
func RegisterMemoryTools(reg *Registry, svc MemoryService) {
	reg.Register(&StoreMemoryTool{svc: svc})
	reg.Register(&SearchMemoriesTool{svc: svc})
	reg.Register(&ListMemoriesTool{svc: svc})
	reg.Register(&DeleteMemoryTool{svc: svc})
	reg.Register(&ProjectStatsTool{svc: svc})
}

// memoryView is the wire shape of a memory; the embedding is never exposed.
type memoryView struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Content   string         `json:"content"`
	Metadata  store.Metadata `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type searchHit struct {
	memoryView
	Similarity float64 `json:"similarity"`
}

func toView(m store.Memory) memoryView {
	return memoryView{
		ID:        m.ID,
		Category:  m.Category,
		Content:   m.Content,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
}

func projectIDSchema() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Project the memory belongs to. Every read and delete is scoped to it.",
		"maxLength":   store.MaxIDLength,
	}
}

// --- store_memory ---

// StoreMemoryTool embeds and persists a new memory.
type StoreMemoryTool struct{ svc MemoryService }

func (t *StoreMemoryTool) Name() string { return "store_memory" }

func (t *StoreMemoryTool) Description() string {
	return "Store a memory (decision, snippet, note) for a project. The content is embedded for later semantic search. Memories are immutable."
}

func (t *StoreMemoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "Text to remember.",
				"maxLength":   store.MaxContentLength,
			},
			"category": map[string]any{
				"type":        "string",
				"description": "Free-form label, e.g. decision, snippet, convention.",
				"maxLength":   store.MaxIDLength,
			},
			"project_id": projectIDSchema(),
			"metadata": map[string]any{
				"type":        "object",
				"description": "Optional key/value data returned verbatim with the memory.",
			},
		},
		"required": []string{"content", "category", "project_id"},
	}
}

func (t *StoreMemoryTool) Execute(ctx context.Context, args map[string]any) *Result {
	content, err := requiredStringArg(args, "content")
	if err != nil {
		return FromError(err)
	}
	category, err := requiredStringArg(args, "category")
	if err != nil {
		return FromError(err)
	}
	projectID, err := requiredStringArg(args, "project_id")
	if err != nil {
		return FromError(err)
	}
	md, err := metadataArg(args, "metadata")
	if err != nil {
		return FromError(err)
	}

	id, err := t.svc.Store(ctx, memory.StoreRequest{
		Content:   content,
		Category:  category,
		ProjectID: projectID,
		Metadata:  md,
	})
	if err != nil {
		return FromError(err)
	}
	return JSONResult(map[string]any{
		"success":    true,
		"memory_id":  id,
		"project_id": projectID,
	})
}

// --- search_memories ---

// SearchMemoriesTool runs a semantic search within a project.
type SearchMemoriesTool struct{ svc MemoryService }

func (t *SearchMemoriesTool) Name() string { return "search_memories" }

func (t *SearchMemoriesTool) Description() string {
	return "Semantic search over a project's memories. Returns the closest matches first with their cosine similarity; only results strictly above the threshold are returned."
}

func (t *SearchMemoriesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural language query.",
				"maxLength":   store.MaxContentLength,
			},
			"project_id": projectIDSchema(),
			"category": map[string]any{
				"type":        "string",
				"description": "Only return memories with exactly this category.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results (default 5).",
				"minimum":     1,
				"maximum":     store.MaxSearchLimit,
				"default":     store.DefaultSearchLimit,
			},
			"similarity_threshold": map[string]any{
				"type":        "number",
				"description": "Minimum cosine similarity, exclusive (default 0.5).",
				"minimum":     0,
				"maximum":     1,
				"default":     store.DefaultSearchThreshold,
			},
		},
		"required": []string{"query", "project_id"},
	}
}

func (t *SearchMemoriesTool) Execute(ctx context.Context, args map[string]any) *Result {
	query, err := requiredStringArg(args, "query")
	if err != nil {
		return FromError(err)
	}
	projectID, err := requiredStringArg(args, "project_id")
	if err != nil {
		return FromError(err)
	}
	category, err := stringArg(args, "category")
	if err != nil {
		return FromError(err)
	}
	limit, err := intArg(args, "limit")
	if err != nil {
		return FromError(err)
	}
	threshold, err := floatArg(args, "similarity_threshold")
	if err != nil {
		return FromError(err)
	}

	results, err := t.svc.Search(ctx, memory.SearchRequest{
		Query:     query,
		ProjectID: projectID,
		Category:  category,
		Limit:     limit,
		Threshold: threshold,
	})
	if err != nil {
		return FromError(err)
	}

	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{memoryView: toView(r.Memory), Similarity: r.Similarity}
	}
	return JSONResult(map[string]any{
		"success": true,
		"results": hits,
		"count":   len(hits),
	})
}

// --- list_memories ---

// ListMemoriesTool pages through a project's memories, newest first.
type ListMemoriesTool struct{ svc MemoryService }

func (t *ListMemoriesTool) Name() string { return "list_memories" }

func (t *ListMemoriesTool) Description() string {
	return "List a project's memories, newest first. Use limit and offset to page."
}

func (t *ListMemoriesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"project_id": projectIDSchema(),
			"category": map[string]any{
				"type":        "string",
				"description": "Only list memories with exactly this category.",
			},
			"limit": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": store.MaxListLimit,
				"default": store.DefaultListLimit,
			},
			"offset": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"default": 0,
			},
		},
		"required": []string{"project_id"},
	}
}

func (t *ListMemoriesTool) Execute(ctx context.Context, args map[string]any) *Result {
	projectID, err := requiredStringArg(args, "project_id")
	if err != nil {
		return FromError(err)
	}
	category, err := stringArg(args, "category")
	if err != nil {
		return FromError(err)
	}
	limit, err := intArg(args, "limit")
	if err != nil {
		return FromError(err)
	}
	offset, err := intArg(args, "offset")
	if err != nil {
		return FromError(err)
	}

	memories, err := t.svc.List(ctx, memory.ListRequest{
		ProjectID: projectID,
		Category:  category,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return FromError(err)
	}

	views := make([]memoryView, len(memories))
	for i, m := range memories {
		views[i] = toView(m)
	}
	return JSONResult(views)
}

// --- delete_memory ---

// DeleteMemoryTool deletes one memory owned by the given project.
type DeleteMemoryTool struct{ svc MemoryService }

func (t *DeleteMemoryTool) Name() string { return "delete_memory" }

func (t *DeleteMemoryTool) Description() string {
	return "Delete a memory by id. The memory must belong to project_id; otherwise the result is the same as a missing id."
}

func (t *DeleteMemoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"memory_id": map[string]any{
				"type":        "string",
				"description": "Id returned by store_memory.",
			},
			"project_id": projectIDSchema(),
		},
		"required": []string{"memory_id", "project_id"},
	}
}

func (t *DeleteMemoryTool) Execute(ctx context.Context, args map[string]any) *Result {
	memoryID, err := requiredStringArg(args, "memory_id")
	if err != nil {
		return FromError(err)
	}
	projectID, err := requiredStringArg(args, "project_id")
	if err != nil {
		return FromError(err)
	}

	deleted, err := t.svc.Delete(ctx, memoryID, projectID)
	if err != nil {
		return FromError(err)
	}
	if !deleted {
		res := JSONResult(map[string]any{
			"success":   false,
			"found":     false,
			"memory_id": memoryID,
			"message":   "memory not found in project",
		})
		res.Code = protocol.ErrNotFound
		return res
	}
	return JSONResult(map[string]any{
		"success":   true,
		"found":     true,
		"memory_id": memoryID,
	})
}

// --- get_project_stats ---

// ProjectStatsTool reports aggregate numbers for a project.
type ProjectStatsTool struct{ svc MemoryService }

func (t *ProjectStatsTool) Name() string { return "get_project_stats" }

func (t *ProjectStatsTool) Description() string {
	return "Return the number of memories stored for a project."
}

func (t *ProjectStatsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"project_id": projectIDSchema(),
		},
		"required": []string{"project_id"},
	}
}

func (t *ProjectStatsTool) Execute(ctx context.Context, args map[string]any) *Result {
	projectID, err := requiredStringArg(args, "project_id")
	if err != nil {
		return FromError(err)
	}
	st, err := t.svc.Stats(ctx, projectID)
	if err != nil {
		return FromError(err)
	}
	return JSONResult(map[string]any{
		"project_id":     projectID,
		"total_memories": st.TotalMemories,
	})
}
