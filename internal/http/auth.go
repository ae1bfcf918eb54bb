package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

// ClientIDHeader lets HTTP callers name themselves for rate limiting.
const ClientIDHeader = "X-Memoria-Client-Id"

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// tokenMatch performs a constant-time comparison of a provided token against the expected token.
// Returns true if expected is empty (no auth configured) or if tokens match.
func tokenMatch(provided, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// extractClientID returns the caller-supplied client ID, or "" when absent.
// Rejects IDs exceeding MaxIDLength.
func extractClientID(r *http.Request) string {
	id := r.Header.Get(ClientIDHeader)
	if id == "" {
		return ""
	}
	if err := store.ValidateRequired("client_id", id); err != nil {
		slog.Warn("security.client_id_invalid", "length", len(id), "max", store.MaxIDLength)
		return ""
	}
	return id
}

// ClientContext copies the request's client ID into ctx. It has the shape of
// the mcp-go HTTP context hooks.
func ClientContext(ctx context.Context, r *http.Request) context.Context {
	if id := extractClientID(r); id != "" {
		return store.WithClientID(ctx, id)
	}
	return ctx
}

// Authenticate rejects requests without the expected bearer token and
// attaches the client ID to the request context. An empty token disables the check.
func Authenticate(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatch(extractBearerToken(r), token) {
			slog.Warn("security.unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(ClientContext(r.Context(), r)))
	})
}
