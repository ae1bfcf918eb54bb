package store

import "context"

type contextKey string

const (
	// ClientIDKey is the context key for the calling client (MCP session or CLI user).
	ClientIDKey contextKey = "memoria_client_id"
)

// WithClientID returns a new context with the given client ID.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ClientIDKey, id)
}

// ClientIDFromContext extracts the client ID from context. Returns "" if not set.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ClientIDKey).(string); ok {
		return v
	}
	return ""
}
