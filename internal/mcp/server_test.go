package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/memoria/internal/embedding"
	"github.com/nextlevelbuilder/memoria/internal/memory"
	"github.com/nextlevelbuilder/memoria/internal/store/sqlite"
	"github.com/nextlevelbuilder/memoria/internal/tools"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

const testDims = 64

func newTestServer(t *testing.T) *Server {
	t.Helper()
	vs, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "mcp.db"), testDims, 4)
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	reg := tools.NewRegistry()
	tools.RegisterMemoryTools(reg, memory.NewService(vs, embedding.NewHash(testDims)))

	s, err := NewServer(reg, "test")
	require.NoError(t, err)
	return s
}

func newInProcessClient(t *testing.T, s *Server) *mcpclient.Client {
	t.Helper()
	ctx := context.Background()
	c, err := mcpclient.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { c.Close() })

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "test", Version: "1"}
	res, err := c.Initialize(ctx, initReq)
	require.NoError(t, err)
	require.Equal(t, ServerName, res.ServerInfo.Name)
	return c
}

func callTool(t *testing.T, c *mcpclient.Client, name string, args map[string]any) (map[string]any, *mcpgo.CallToolResult) {
	t.Helper()
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(extractTextContent(res)), &body))
	return body, res
}

func TestServer_ListsMemoryTools(t *testing.T) {
	c := newInProcessClient(t, newTestServer(t))

	list, err := c.ListTools(context.Background(), mcpgo.ListToolsRequest{})
	require.NoError(t, err)

	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"store_memory", "search_memories", "list_memories", "delete_memory", "get_project_stats",
	}, names)
}

func TestServer_StoreSearchDelete(t *testing.T) {
	c := newInProcessClient(t, newTestServer(t))

	stored, res := callTool(t, c, "store_memory", map[string]any{
		"content":    "the deploy pipeline runs on tuesdays",
		"category":   "convention",
		"project_id": "ops",
	})
	require.False(t, res.IsError)
	id := stored["memory_id"].(string)

	found, res := callTool(t, c, "search_memories", map[string]any{
		"query":      "the deploy pipeline runs on tuesdays",
		"project_id": "ops",
	})
	require.False(t, res.IsError)
	assert.Equal(t, float64(1), found["count"])

	// Other projects see nothing.
	found, _ = callTool(t, c, "search_memories", map[string]any{
		"query":      "the deploy pipeline runs on tuesdays",
		"project_id": "dev",
	})
	assert.Equal(t, float64(0), found["count"])

	missing, res := callTool(t, c, "delete_memory", map[string]any{"memory_id": id, "project_id": "dev"})
	assert.False(t, res.IsError)
	assert.Equal(t, false, missing["found"])
	assert.Equal(t, protocol.ErrNotFound, resultCode(res))

	deleted, res := callTool(t, c, "delete_memory", map[string]any{"memory_id": id, "project_id": "ops"})
	assert.False(t, res.IsError)
	assert.Equal(t, true, deleted["success"])
}

func TestServer_ToolErrorIsResultNotProtocolError(t *testing.T) {
	c := newInProcessClient(t, newTestServer(t))

	body, res := callTool(t, c, "search_memories", map[string]any{
		"query":      "anything",
		"project_id": "p",
		"limit":      500,
	})
	assert.True(t, res.IsError)
	assert.Equal(t, protocol.ErrInvalidRequest, resultCode(res))
	assert.Equal(t, false, body["success"])
}

func TestRemote_RoundTripThroughRegistry(t *testing.T) {
	s := newTestServer(t)
	c, err := mcpclient.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)

	ctx := context.Background()
	remote, err := NewRemote(ctx, "inprocess", c)
	require.NoError(t, err)
	t.Cleanup(func() { remote.Close() })

	reg := tools.NewRegistry()
	n, err := remote.RegisterTools(ctx, reg, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	res := reg.Execute(ctx, "store_memory", map[string]any{
		"content": "remote note", "category": "note", "project_id": "r",
	})
	require.False(t, res.IsError, res.Content)

	res = reg.Execute(ctx, "get_project_stats", map[string]any{"project_id": "r"})
	require.False(t, res.IsError, res.Content)
	assert.JSONEq(t, `{"project_id":"r","total_memories":1}`, res.Content)

	res = reg.Execute(ctx, "delete_memory", map[string]any{"memory_id": "nope", "project_id": "r"})
	assert.False(t, res.IsError)
	assert.Equal(t, protocol.ErrNotFound, res.Code)

	require.NoError(t, remote.Close())
	res = reg.Execute(ctx, "get_project_stats", map[string]any{"project_id": "r"})
	assert.True(t, res.IsError)
	assert.Equal(t, protocol.ErrUnavailable, res.Code)
}

func TestMount_RejectsStdio(t *testing.T) {
	s := newTestServer(t)
	mux := http.NewServeMux()
	assert.Error(t, s.Mount(mux, TransportStdio, ""))
	assert.NoError(t, s.Mount(mux, TransportHTTP, "secret"))
}
