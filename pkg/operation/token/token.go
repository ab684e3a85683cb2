// Package token provides MCP tools describing the bearer token of the current request.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-training/authz-server/pkg/core"

	"github.com/mark3labs/mcp-go/mcp"
)

var errMissingToken = errors.New("missing access token")

// ShowAuthTokenTool defines the MCP tool for displaying the current auth token.
var ShowAuthTokenTool = mcp.NewTool("show_auth_token",
	mcp.WithDescription("Show the current authentication token"),
)

// TokenInfoTool defines the MCP tool describing the current token record.
var TokenInfoTool = mcp.NewTool("token_info",
	mcp.WithDescription("Show the user, expiry and issuer kind of the current access token"),
)

// tokenInfo is the token_info result. The token value itself is never included.
type tokenInfo struct {
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Outer     bool      `json:"outer"`
	ClientApp bool      `json:"client_credentials"`
}

// HandleShowAuthTokenTool returns the bearer token of the request, masked.
func HandleShowAuthTokenTool(
	ctx context.Context,
	_ mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	token, ok := core.AccessTokenFromContext(ctx)
	if !ok {
		return nil, errMissingToken
	}
	return mcp.NewToolResultText(Mask(token.Token)), nil
}

// HandleTokenInfoTool returns the stored record of the bearer token.
func HandleTokenInfoTool(
	ctx context.Context,
	_ mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	logger := core.LoggerFromCtx(ctx)

	token, ok := core.AccessTokenFromContext(ctx)
	if !ok {
		logger.Error("Missing token in context")
		return nil, errMissingToken
	}

	data, err := json.Marshal(tokenInfo{
		UserID:    token.UserID,
		ExpiresAt: token.ExpiredIn.UTC(),
		Outer:     token.Outer,
		ClientApp: token.UserID == "",
	})
	if err != nil {
		logger.Error("Failed to marshal token info", "error", err)
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Mask shows the first 6 and last 2 characters of a token; short tokens are hidden entirely.
func Mask(token string) string {
	switch {
	case len(token) > 8:
		return token[:6] + "****" + token[len(token)-2:]
	case len(token) > 0:
		return "****"
	default:
		return ""
	}
}
