package server

import (
	"net/http"

	"github.com/go-training/authz-server/pkg/oauth"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/client/transport"
)

// Metadata is the authorization server metadata document (RFC 8414).
func (s *Server) Metadata() transport.AuthServerMetadata {
	return transport.AuthServerMetadata{
		Issuer:                            s.opts.Issuer,
		AuthorizationEndpoint:             s.opts.Issuer + "/authorize",
		TokenEndpoint:                     s.opts.Issuer + "/token",
		ScopesSupported:                   s.clients.Scopes(),
		ResponseTypesSupported:            []string{oauth.ResponseTypeCode},
		GrantTypesSupported:               []string{oauth.GrantTypeAuthorizationCode, oauth.GrantTypeClientCredentials},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic"},
	}
}

func (s *Server) handleMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metadata())
}
