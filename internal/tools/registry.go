package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/memoria/internal/store"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

// Registry manages tool registration and execution.
type Registry struct {
	tools       map[string]Tool
	mu          sync.RWMutex
	rateLimiter *RateLimiter // nil = no rate limiting
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// SetRateLimiter enables per-client rate limiting.
func (r *Registry) SetRateLimiter(rl *RateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = rl
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a tool by name. The client ID in ctx (see store.WithClientID)
// is the rate-limit key; calls without one are not limited.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result *Result) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	rl := r.rateLimiter
	r.mu.RUnlock()

	if !ok {
		return ErrorResult(protocol.ErrInvalidRequest, "unknown tool: "+name)
	}

	clientID := store.ClientIDFromContext(ctx)
	if rl != nil && clientID != "" && !rl.Allow(clientID) {
		return ErrorResult(protocol.ErrResourceExhausted, "rate limit exceeded, retry later")
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool panicked", "tool", name, "panic", p)
			result = ErrorResult(protocol.ErrInternal, fmt.Sprintf("tool %s failed unexpectedly", name))
		}
		if result == nil {
			result = ErrorResult(protocol.ErrInternal, fmt.Sprintf("tool %s returned no result", name))
		}
		slog.Debug("tool executed",
			"tool", name,
			"client", clientID,
			"duration_ms", time.Since(start).Milliseconds(),
			"is_error", result.IsError,
			"code", result.Code,
		)
	}()

	if args == nil {
		args = map[string]any{}
	}
	return tool.Execute(ctx, args)
}

// Definitions returns tool definitions sorted by name.
func (r *Registry) Definitions() ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		def, err := ToDefinition(tool)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", tool.Name(), err)
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
