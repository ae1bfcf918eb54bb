package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/memoria/internal/store"
	"github.com/nextlevelbuilder/memoria/internal/tools"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

type echoClientTool struct{}

func (echoClientTool) Name() string               { return "whoami" }
func (echoClientTool) Description() string        { return "returns the client id" }
func (echoClientTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (echoClientTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	if args["fail"] == true {
		return tools.ErrorResult(protocol.ErrInvalidRequest, "asked to fail")
	}
	return tools.JSONResult(map[string]string{"client": store.ClientIDFromContext(ctx)})
}

type echoArgsTool struct{}

func (echoArgsTool) Name() string               { return "echo" }
func (echoArgsTool) Description() string        { return "returns its arguments" }
func (echoArgsTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (echoArgsTool) Execute(_ context.Context, args map[string]any) *tools.Result {
	return tools.JSONResult(args)
}

func newTestMux(token string) *http.ServeMux {
	reg := tools.NewRegistry()
	reg.Register(echoClientTool{})
	reg.Register(echoArgsTool{})
	mux := http.NewServeMux()
	NewToolsHandler(reg, "test").RegisterRoutes(mux, token)
	return mux
}

func TestTokenMatch(t *testing.T) {
	if !tokenMatch("", "") {
		t.Error("no token configured should allow")
	}
	if tokenMatch("wrong", "secret") {
		t.Error("wrong token should not match")
	}
	if !tokenMatch("secret", "secret") {
		t.Error("same token should match")
	}
}

func TestInvoke_RequiresToken(t *testing.T) {
	mux := newTestMux("secret")

	req := httptest.NewRequest(http.MethodPost, "/v1/tools/invoke", strings.NewReader(`{"tool":"whoami"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/tools/invoke", strings.NewReader(`{"tool":"whoami"}`))
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(ClientIDHeader, "cli-7")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["client"] != "cli-7" {
		t.Errorf("client id not propagated: %v", body)
	}
}

func TestInvoke_StatusMapping(t *testing.T) {
	mux := newTestMux("")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing tool", `{}`, http.StatusBadRequest},
		{"unknown tool", `{"tool":"nope"}`, http.StatusBadRequest},
		{"tool error", `{"tool":"whoami","args":{"fail":true}}`, http.StatusBadRequest},
		{"dry run unknown", `{"tool":"nope","dryRun":true}`, http.StatusNotFound},
		{"dry run", `{"tool":"whoami","dryRun":true}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/tools/invoke", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	notFound := tools.NewResult(`{}`)
	notFound.Code = protocol.ErrNotFound
	if got := statusFor(notFound); got != http.StatusNotFound {
		t.Errorf("not found: %d", got)
	}
	if got := statusFor(tools.ErrorResult(protocol.ErrResourceExhausted, "slow down")); got != http.StatusTooManyRequests {
		t.Errorf("rate limited: %d", got)
	}
	if got := statusFor(tools.ErrorResult(protocol.ErrUnavailable, "down")); got != http.StatusServiceUnavailable {
		t.Errorf("unavailable: %d", got)
	}
}

func TestHealthAndList(t *testing.T) {
	mux := newTestMux("secret")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz should not need a token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"whoami"`) {
		t.Errorf("list: %d %s", rec.Code, rec.Body)
	}
}

func TestInvoke_KeepsLargeIntegers(t *testing.T) {
	mux := newTestMux("")

	body := `{"tool":"echo","args":{"metadata":{"id":9007199254740993},"limit":5}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/invoke", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"id":9007199254740993`) {
		t.Errorf("integer rounded on the way through: %s", rec.Body)
	}
}
