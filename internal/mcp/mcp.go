package mcp

import (
	"context"
	"net/http"

	"adte.com/adte/adset-agent/internal/api"
	"adte.com/adte/adset-agent/internal/tools"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPHandler exposes the toolset as MCP tools.
type MCPHandler struct {
	tools *tools.Toolset
}

// NewMCPHandler creates a new MCP handler
func NewMCPHandler(ts *tools.Toolset) *MCPHandler {
	return &MCPHandler{tools: ts}
}

func toolResult(res tools.Result) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		IsError: res.IsError,
		Content: []sdk.Content{
			&sdk.TextContent{Text: res.Text},
		},
	}
}

// HandleGetAdSets lists the ad sets of an account
func (h *MCPHandler) HandleGetAdSets(ctx context.Context, _ *sdk.CallToolRequest, input api.GetAdSetsRequest) (*sdk.CallToolResult, any, error) {
	return toolResult(h.tools.GetAdSets(ctx, input)), nil, nil
}

// HandleGetAdSetDetails fetches a single ad set
func (h *MCPHandler) HandleGetAdSetDetails(ctx context.Context, _ *sdk.CallToolRequest, input api.GetAdSetDetailsRequest) (*sdk.CallToolResult, any, error) {
	return toolResult(h.tools.GetAdSetDetails(ctx, input)), nil, nil
}

// HandleUpdateAdSet proposes an ad set change and returns its confirmation link
func (h *MCPHandler) HandleUpdateAdSet(ctx context.Context, _ *sdk.CallToolRequest, input api.UpdateAdSetRequest) (*sdk.CallToolResult, any, error) {
	return toolResult(h.tools.UpdateAdSet(ctx, input)), nil, nil
}

// RegisterTools registers all MCP tools with the server
func (h *MCPHandler) RegisterTools(mcpServer *sdk.Server) {
	sdk.AddTool(mcpServer, &sdk.Tool{
		Name:        tools.ToolGetAdSets,
		Description: "Get ad sets for a Meta Ads account with optional filtering by campaign. Uses the first account of the token owner when account_id is omitted.",
	}, h.HandleGetAdSets)

	sdk.AddTool(mcpServer, &sdk.Tool{
		Name:        tools.ToolGetAdSetDetails,
		Description: "Get detailed information about a specific ad set.",
	}, h.HandleGetAdSetDetails)

	sdk.AddTool(mcpServer, &sdk.Tool{
		Name:        tools.ToolUpdateAdSet,
		Description: "Propose an update to an ad set's bid_strategy, bid_amount, frequency_control_specs or status. Returns a confirmation link that a human must open and approve before anything changes.",
	}, h.HandleUpdateAdSet)
}

// NewServer builds an MCP server with the ad set tools registered.
func NewServer(ts *tools.Toolset, version string) *sdk.Server {
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    "adset-agent",
		Version: version,
	}, nil)
	NewMCPHandler(ts).RegisterTools(mcpServer)
	return mcpServer
}

// NewStreamableHandler serves mcpServer over streamable HTTP. Each request
// is authenticated on its own, so no session state is kept.
func NewStreamableHandler(mcpServer *sdk.Server) http.Handler {
	return sdk.NewStreamableHTTPHandler(
		func(*http.Request) *sdk.Server { return mcpServer },
		&sdk.StreamableHTTPOptions{
			JSONResponse: true,
			Stateless:    true,
		},
	)
}
