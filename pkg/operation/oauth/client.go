// Package oauth provides MCP tools for inspecting registered OAuth clients.
package oauth

import (
	"context"
	"encoding/json"

	"github.com/go-training/authz-server/pkg/core"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ClientLister lists the registered clients.
type ClientLister interface {
	List() []core.Client
}

// ListOAuthClientsTool defines the MCP tool for listing all OAuth clients.
var ListOAuthClientsTool = mcp.NewTool("list_oauth_clients",
	mcp.WithDescription("List all registered OAuth clients"),
)

// NewListOAuthClientsHandler returns a handler listing the clients of lister.
// Secrets are never part of the output.
func NewListOAuthClientsHandler(lister ClientLister) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := core.LoggerFromCtx(ctx)
		logger.Info("Handling list_oauth_clients tool")

		data, err := json.Marshal(lister.List())
		if err != nil {
			logger.Error("Failed to marshal clients to JSON", "error", err)
			return nil, err
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}
