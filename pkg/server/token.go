package server

import (
	"fmt"
	"net/http"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/oauth"

	"github.com/gin-gonic/gin"
)

// handleToken checks the grant type shape, then lets the processor
// authenticate the client and run the grant.
func (s *Server) handleToken(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	grantType := c.PostForm("grant_type")
	if grantType == "" {
		c.JSON(http.StatusBadRequest, oauth.ErrorBody{Error: oauth.CodeInvalidRequest})
		return
	}
	if !oauth.SupportedGrantType(grantType) {
		core.LoggerFromCtx(c.Request.Context()).Warn("token request rejected",
			"reason", fmt.Sprintf("%v: %q", oauth.ErrUnsupportedGrantType, grantType))
		c.JSON(http.StatusBadRequest, oauth.ErrorBody{Error: oauth.CodeUnsupportedGrantType})
		return
	}

	resp, err := s.processor.IssueToken(c.Request.Context(), c.GetHeader("Authorization"), oauth.TokenRequest{
		GrantType:   grantType,
		Code:        c.PostForm("code"),
		RedirectURI: c.PostForm("redirect_uri"),
		Scope:       c.PostForm("scope"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
