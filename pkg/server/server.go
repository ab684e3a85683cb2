// Package server exposes the authorization server over HTTP with gin.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/oauth"
	"github.com/go-training/authz-server/pkg/operation"

	ginslog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
)

const (
	realm = "authz-server"
	// sessionCookie carries the login session token.
	sessionCookie = "token"
)

// Clients is the view of the client registry the transport needs.
type Clients interface {
	oauth.ClientFinder
	List() []core.Client
	Scopes() []string
}

// Options configure a Server.
type Options struct {
	// Issuer is the externally visible origin, used in the metadata document.
	Issuer string
	// TokenRate and TokenBurst bound token requests per client IP.
	TokenRate  int
	TokenBurst int
	// TrustedProxies are the addresses or CIDRs whose X-Forwarded-For header
	// is believed. Without any, the client IP is the connection's remote address.
	TrustedProxies []string
	// Version is reported by the MCP server.
	Version string
}

// Server routes HTTP requests to the authorization and token processors.
type Server struct {
	processor *oauth.Processor
	sessions  *oauth.Sessions
	clients   Clients
	limiter   *RateLimiter
	mcp       *server.StreamableHTTPServer
	opts      Options
}

// New creates a Server.
func New(processor *oauth.Processor, sessions *oauth.Sessions, clients Clients, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	opts.Issuer = strings.TrimRight(opts.Issuer, "/")

	s := &Server{
		processor: processor,
		sessions:  sessions,
		clients:   clients,
		limiter:   NewRateLimiter(opts.TokenRate, opts.TokenBurst),
		opts:      opts,
	}
	s.mcp = s.newMCPHandler()
	return s
}

// Limiter returns the token endpoint rate limiter, so idle entries can be swept.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

// newMCPHandler builds the protected resource endpoint. Tools read the bearer
// token record that bearerMiddleware put into the request context.
func (s *Server) newMCPHandler() *server.StreamableHTTPServer {
	mcpServer := server.NewMCPServer(
		"authz-server",
		s.opts.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(toolObservabilityMiddleware()),
	)
	operation.RegisterAuthTool(mcpServer, s.clients)

	return server.NewStreamableHTTPServer(mcpServer,
		server.WithHeartbeatInterval(30*time.Second),
		server.WithHTTPContextFunc(func(ctx context.Context, _ *http.Request) context.Context {
			if core.RequestIDFromContext(ctx) == "" {
				ctx = core.WithRequestID(ctx)
			}
			return ctx
		}),
	)
}

// Router returns the gin engine serving every endpoint.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(s.opts.TrustedProxies); err != nil {
		slog.Error("Invalid trusted proxies, ignoring forwarded headers", "error", err)
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(ginslog.SetLogger(), gin.Recovery(), requestIDMiddleware)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/.well-known/oauth-authorization-server", corsMiddleware(), s.handleMetadata)

	router.GET("/authorize", s.handleAuthorize)
	router.POST("/authorize", s.handleLogin)

	token := router.Group("/token", corsMiddleware(), s.rateLimitMiddleware)
	token.OPTIONS("", func(*gin.Context) {})
	token.POST("", s.handleToken)

	mcp := router.Group("/mcp", corsMiddleware())
	mcp.OPTIONS("", func(*gin.Context) {})
	mcp.POST("", s.bearerMiddleware, gin.WrapH(s.mcp))
	mcp.GET("", s.bearerMiddleware, gin.WrapH(s.mcp))
	mcp.DELETE("", s.bearerMiddleware, gin.WrapH(s.mcp))

	return router
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.Router()
}
