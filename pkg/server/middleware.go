package server

import (
	"net/http"
	"strings"

	"github.com/go-training/authz-server/pkg/core"

	"github.com/gin-gonic/gin"
)

const headerRequestID = "X-Request-ID"

// corsMiddleware allows cross origin calls from browser based clients and
// answers preflight requests itself.
func corsMiddleware() gin.HandlerFunc {
	headersList := []string{"Mcp-Protocol-Version", "Mcp-Session-Id", "Authorization", "Content-Type"}
	allowedMethods := []string{"GET", "POST", "DELETE", "OPTIONS"}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Methods", strings.Join(allowedMethods, ", "))
		c.Header("Access-Control-Allow-Headers", strings.Join(headersList, ", "))
		c.Header("Access-Control-Expose-Headers", "Mcp-Session-Id, WWW-Authenticate")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware puts a request id into the request context and echoes it back.
func requestIDMiddleware(c *gin.Context) {
	ctx := core.WithRequestID(c.Request.Context())
	c.Request = c.Request.WithContext(ctx)
	c.Header(headerRequestID, core.RequestIDFromContext(ctx))
	c.Next()
}

// bearerMiddleware rejects requests whose bearer token is not a live token record,
// and stores the record in the request context otherwise.
func (s *Server) bearerMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	token, ok := s.sessions.CheckToken(ctx, core.BearerFromRequest(c.Request))
	if !ok {
		core.LoggerFromCtx(ctx).Debug("bearer token rejected", "path", c.Request.URL.Path)
		c.Header("WWW-Authenticate", `Bearer realm="`+realm+`"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	c.Request = c.Request.WithContext(core.WithAccessToken(ctx, token))
	c.Next()
}

// rateLimitMiddleware limits requests per client IP. Forwarded headers only
// count when the router trusts the connecting proxy.
func (s *Server) rateLimitMiddleware(c *gin.Context) {
	if !s.limiter.Allow(c.ClientIP()) {
		core.LoggerFromCtx(c.Request.Context()).Warn("rate limit exceeded", "client_ip", c.ClientIP(), "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}
	c.Next()
}
