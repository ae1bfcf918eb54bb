package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/memoria/internal/tools"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

// maxInvokeBody bounds the request body; content itself is capped at 32 KiB.
const maxInvokeBody = 1 << 20

// ToolsHandler serves the plain JSON tool endpoints for callers that do not
// speak MCP.
type ToolsHandler struct {
	registry *tools.Registry
	version  string
}

// NewToolsHandler creates a handler for the tool endpoints.
func NewToolsHandler(registry *tools.Registry, version string) *ToolsHandler {
	return &ToolsHandler{registry: registry, version: version}
}

// RegisterRoutes mounts the endpoints on mux behind Authenticate(token).
func (h *ToolsHandler) RegisterRoutes(mux *http.ServeMux, token string) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /v1/tools", Authenticate(token, http.HandlerFunc(h.handleList)))
	mux.Handle("POST /v1/tools/invoke", Authenticate(token, http.HandlerFunc(h.handleInvoke)))
}

type toolsInvokeRequest struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	DryRun bool           `json:"dryRun,omitempty"`
}

func (h *ToolsHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  h.version,
		"protocol": protocol.Version,
		"tools":    h.registry.Count(),
	})
}

func (h *ToolsHandler) handleList(w http.ResponseWriter, _ *http.Request) {
	defs, err := h.registry.Definitions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": defs})
}

func (h *ToolsHandler) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req toolsInvokeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInvokeBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "tool is required")
		return
	}

	slog.Debug("tools invoke request", "tool", req.Tool, "dry_run", req.DryRun)

	if req.DryRun {
		tool, ok := h.registry.Get(req.Tool)
		if !ok {
			writeError(w, http.StatusNotFound, protocol.ErrNotFound, fmt.Sprintf("tool %q not found", req.Tool))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tool":        req.Tool,
			"description": tool.Description(),
			"parameters":  tool.Parameters(),
			"dryRun":      true,
		})
		return
	}

	result := h.registry.Execute(r.Context(), req.Tool, req.Args)

	w.Header().Set("Content-Type", "application/json")
	if result.Code != "" {
		w.Header().Set("X-Memoria-Code", result.Code)
	}
	w.WriteHeader(statusFor(result))
	_, _ = w.Write([]byte(result.Content))
}

// statusFor maps a tool result to an HTTP status. The body is the tool's JSON
// either way.
func statusFor(res *tools.Result) int {
	if !res.IsError {
		if res.Code == protocol.ErrNotFound {
			return http.StatusNotFound
		}
		return http.StatusOK
	}
	switch res.Code {
	case protocol.ErrInvalidRequest:
		return http.StatusBadRequest
	case protocol.ErrResourceExhausted:
		return http.StatusTooManyRequests
	case protocol.ErrUnavailable:
		return http.StatusServiceUnavailable
	case protocol.ErrFailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
