// Package mcp exposes a tools.Registry as an MCP server and adapts remote MCP
// tools back into the registry model.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/memoria/internal/store"
	"github.com/nextlevelbuilder/memoria/internal/tools"
)

// ServerName is the implementation name announced during initialize.
const ServerName = "memoria"

const instructions = "Persistent project memory. Store decisions, snippets and notes with " +
	"store_memory, retrieve them with search_memories (semantic) or list_memories " +
	"(newest first). Every call is scoped to a project_id."

// Server wraps an mcp-go server whose tools dispatch into a Registry.
type Server struct {
	reg *tools.Registry
	srv *server.MCPServer
}

// NewServer registers every tool in reg on a new MCP server.
func NewServer(reg *tools.Registry, version string) (*Server, error) {
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(_ context.Context, session server.ClientSession) {
		slog.Debug("mcp session opened", "session", session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		slog.Debug("mcp session closed", "session", session.SessionID())
	})

	s := &Server{
		reg: reg,
		srv: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithHooks(hooks),
			server.WithInstructions(instructions),
		),
	}

	defs, err := reg.Definitions()
	if err != nil {
		return nil, fmt.Errorf("build tool definitions: %w", err)
	}
	for _, def := range defs {
		s.srv.AddTool(mcpgo.NewToolWithRawSchema(def.Name, def.Description, def.InputSchema), s.handler(def.Name))
	}
	slog.Info("mcp server ready", "tools", len(defs), "version", version)
	return s, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.srv }

// handler runs a registry tool. Tool failures travel in the result (IsError),
// never as protocol errors. The rate-limit key is the client ID set by the
// HTTP layer, falling back to the MCP session.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		if store.ClientIDFromContext(ctx) == "" {
			if session := server.ClientSessionFromContext(ctx); session != nil && session.SessionID() != "" {
				ctx = store.WithClientID(ctx, session.SessionID())
			}
		}

		res := s.reg.Execute(ctx, name, req.GetArguments())

		out := mcpgo.NewToolResultText(res.Content)
		out.IsError = res.IsError
		if res.Code != "" {
			out.Meta = mcpgo.NewMetaFromMap(map[string]any{"code": res.Code})
		}
		return out, nil
	}
}
