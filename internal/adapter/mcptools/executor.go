// Package mcptools executes agent tools on an external MCP server instead of
// the built-in file tool set.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/haldis/agentrelay/internal/config"
	"github.com/haldis/agentrelay/internal/domain/run"
	toolsport "github.com/haldis/agentrelay/internal/port/tools"
)

// Executor proxies tool calls to a connected MCP server. One executor is
// shared by all sessions; the MCP protocol carries no per-session state.
type Executor struct {
	client mcpclient.MCPClient
	defs   []toolsport.Definition
}

// Connect creates the MCP client for the configured transport, performs the
// Initialize handshake and fetches the tool catalog.
func Connect(ctx context.Context, cfg config.MCP, version string) (*Executor, error) {
	client, err := createClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "agentrelay",
		Version: version,
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	toolsResult, err := client.ListTools(ctx, mcpprotocol.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mcp tools/list: %w", err)
	}

	defs := make([]toolsport.Definition, 0, len(toolsResult.Tools))
	for i := range toolsResult.Tools {
		t := &toolsResult.Tools[i]
		defs = append(defs, toolsport.Definition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaToMap(t.InputSchema),
		})
	}

	return &Executor{client: client, defs: defs}, nil
}

// Definitions returns the catalog discovered during the handshake.
func (e *Executor) Definitions() []toolsport.Definition {
	return e.defs
}

// Execute calls the named tool on the MCP server and returns the
// concatenated text content. MCP tools never report file changes; the
// session's ledger picks those up from disk.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (string, *run.Change, error) {
	req := mcpprotocol.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := e.client.CallTool(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("mcp call %s: %w", name, err)
	}

	text := contentText(result.Content)
	if result.IsError {
		return "", nil, fmt.Errorf("mcp tool %s failed: %s", name, text)
	}
	return text, nil, nil
}

// Close shuts down the MCP client.
func (e *Executor) Close() error {
	return e.client.Close()
}

func createClient(cfg config.MCP) (mcpclient.MCPClient, error) {
	switch cfg.Transport {
	case "stdio":
		return mcpclient.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	case "sse":
		return mcpclient.NewSSEMCPClient(cfg.URL)
	case "http":
		return mcpclient.NewStreamableHttpClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// schemaToMap converts the tool input schema into the generic JSON-schema
// map the oracle request expects.
func schemaToMap(schema mcpprotocol.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

func contentText(content []mcpprotocol.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcpprotocol.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
