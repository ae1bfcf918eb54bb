package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	httpapi "github.com/nextlevelbuilder/memoria/internal/http"
	"github.com/nextlevelbuilder/memoria/internal/tools"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

// Remote is a connection to another memoria server (or any MCP server).
type Remote struct {
	name      string
	client    *mcpclient.Client
	connected atomic.Bool
}

// Dial connects to a streamable HTTP endpoint such as http://host:8700/mcp.
// token and clientID are sent as headers when non-empty.
func Dial(ctx context.Context, url, token, clientID string) (*Remote, error) {
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	if clientID != "" {
		headers[httpapi.ClientIDHeader] = clientID
	}
	c, err := mcpclient.NewStreamableHttpClient(url, transport.WithHTTPHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	return NewRemote(ctx, url, c)
}

// NewRemote starts and initializes an existing client. name labels errors.
func NewRemote(ctx context.Context, name string, c *mcpclient.Client) (*Remote, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp client %s: %w", name, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: ServerName + "-cli", Version: protocol.Version}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp client %s: %w", name, err)
	}

	r := &Remote{name: name, client: c}
	r.connected.Store(true)
	return r, nil
}

// RegisterTools lists the remote tools and registers a RemoteTool for each.
func (r *Remote) RegisterTools(ctx context.Context, reg *tools.Registry, timeoutSec int) (int, error) {
	list, err := r.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return 0, fmt.Errorf("list tools on %s: %w", r.name, err)
	}
	for _, t := range list.Tools {
		reg.Register(NewRemoteTool(r.name, t, r.client, timeoutSec, &r.connected))
	}
	return len(list.Tools), nil
}

// Close shuts the client down. Registered RemoteTools fail fast afterwards.
func (r *Remote) Close() error {
	r.connected.Store(false)
	return r.client.Close()
}

// RemoteTool adapts an MCP tool into the tools.Tool interface.
// It delegates Execute calls to the MCP server via the client.
type RemoteTool struct {
	serverName  string
	toolName    string
	description string
	inputSchema map[string]any // JSON Schema for parameters
	client      *mcpclient.Client
	timeoutSec  int
	connected   *atomic.Bool
}

// NewRemoteTool creates a RemoteTool from an MCP Tool definition.
func NewRemoteTool(serverName string, mcpTool mcpgo.Tool, client *mcpclient.Client, timeoutSec int, connected *atomic.Bool) *RemoteTool {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &RemoteTool{
		serverName:  serverName,
		toolName:    mcpTool.Name,
		description: mcpTool.Description,
		inputSchema: inputSchemaToMap(mcpTool.InputSchema),
		client:      client,
		timeoutSec:  timeoutSec,
		connected:   connected,
	}
}

func (t *RemoteTool) Name() string               { return t.toolName }
func (t *RemoteTool) Description() string        { return t.description }
func (t *RemoteTool) Parameters() map[string]any { return t.inputSchema }

// ServerName returns the name of the MCP server this tool belongs to.
func (t *RemoteTool) ServerName() string { return t.serverName }

func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	if t.connected == nil || !t.connected.Load() {
		return tools.ErrorResult(protocol.ErrUnavailable, fmt.Sprintf("MCP server %q is disconnected", t.serverName))
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(t.timeoutSec)*time.Second)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.toolName
	req.Params.Arguments = args

	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return tools.ErrorResult(protocol.ErrUnavailable, fmt.Sprintf("MCP tool %q timeout after %ds", t.toolName, t.timeoutSec))
		}
		return tools.ErrorResult(protocol.ErrUnavailable, fmt.Sprintf("MCP tool %q error: %v", t.toolName, err))
	}

	return &tools.Result{
		Content: extractTextContent(result),
		IsError: result.IsError,
		Code:    resultCode(result),
	}
}

// resultCode reads the protocol code a memoria server places in _meta.
func resultCode(result *mcpgo.CallToolResult) string {
	if result.Meta == nil {
		return ""
	}
	code, _ := result.Meta.AdditionalFields["code"].(string)
	return code
}

// inputSchemaToMap converts mcp.ToolInputSchema to the map format expected by tools.Tool.Parameters().
func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]any {
	m := map[string]any{
		"type": schema.Type,
	}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.AdditionalProperties != nil {
		m["additionalProperties"] = schema.AdditionalProperties
	}
	return m
}

// extractTextContent concatenates all text content from a CallToolResult.
func extractTextContent(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
