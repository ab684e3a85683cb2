// Package main runs the OAuth 2.0 authorization server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-training/authz-server/pkg/config"
	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/logger"
	"github.com/go-training/authz-server/pkg/oauth"
	"github.com/go-training/authz-server/pkg/registry"
	"github.com/go-training/authz-server/pkg/server"
	"github.com/go-training/authz-server/pkg/store"
	"github.com/go-training/authz-server/pkg/tokenclient"
	"github.com/go-training/authz-server/pkg/tokenstore"

	"github.com/appleboy/graceful"
)

const (
	shutdownTimeout  = 10 * time.Second
	limiterIdleAfter = 30 * time.Minute
)

// sweeper is implemented by flow stores that need explicit eviction.
type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

func main() {
	var addr string
	var logLevel string
	flag.StringVar(&addr, "addr", ":8095", "address to listen on")
	flag.StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR). Defaults to DEBUG in development, INFO in production")
	flag.Parse()

	// Initialize logger with the specified log level
	logger.NewWithLevel(logLevel)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, addr); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, addr string) error {
	ctx := context.Background()

	flows, err := store.NewStoreFromType(cfg.Flow.Type, store.RedisOptions{
		Addr:     cfg.Flow.RedisAddr,
		Password: cfg.Flow.RedisPassword,
		DB:       cfg.Flow.RedisDB,
	})
	if err != nil {
		return err
	}
	slog.Info("Flow store ready", "type", cfg.Flow.Type)

	tokens, err := tokenstore.New(ctx, cfg.Tokens)
	if err != nil {
		closeFlowStore(flows)
		return err
	}
	slog.Info("Token store ready", "type", cfg.Tokens.Type)

	for _, u := range cfg.Users {
		if _, err := tokenstore.SeedUser(ctx, tokens, u.Name, u.Password); err != nil {
			closeFlowStore(flows)
			_ = tokens.Close()
			return err
		}
	}

	clients := registry.New(cfg.RegisteredClients()...)
	for _, c := range clients.List() {
		slog.Info("Registered client", "name", c.Name, "client_id", c.ID, "redirect_uris", c.RedirectURIs)
	}

	processor := oauth.NewProcessor(clients, flows, tokens, oauth.SettingsFromConfig(cfg.Auth))
	sessions := oauth.NewSessions(tokens, tokens, tokenclient.New(tokenclient.FromConfig(cfg)), cfg.Auth.TokenTTL())

	srv := server.New(processor, sessions, clients, server.Options{
		Issuer:         cfg.Origin.Self,
		TokenRate:      cfg.Limits.TokenRate,
		TokenBurst:     cfg.Limits.TokenBurst,
		TrustedProxies: cfg.Limits.TrustedProxies,
	})
	if len(cfg.Limits.TrustedProxies) > 0 {
		slog.Warn("Trusting X-Forwarded-For from reverse proxies",
			"proxies", cfg.Limits.TrustedProxies,
			"risk", "client IP spoofing if a listed proxy forwards untrusted headers")
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	m := graceful.NewManager()

	m.AddRunningJob(func(ctx context.Context) error {
		slog.Info("Authorization server listening", "addr", addr, "issuer", cfg.Origin.Self)

		errCh := make(chan error, 1)
		go func() {
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			slog.Info("Shutdown signal received, shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		}
	})

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.Auth.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				sweep(core.WithRequestID(ctx), flows, tokens, srv.Limiter())
			}
		}
	})

	m.AddShutdownJob(func() error {
		closeFlowStore(flows)
		return nil
	})
	m.AddShutdownJob(func() error {
		return tokens.Close()
	})

	<-m.Done()
	slog.Info("Server shutdown gracefully")
	return nil
}

// sweep evicts expired flow records, tokens and idle rate limiters.
func sweep(ctx context.Context, flows core.FlowStore, tokens tokenstore.Store, limiter *server.RateLimiter) {
	log := core.LoggerFromCtx(ctx)

	if s, ok := flows.(sweeper); ok {
		if n, err := s.Sweep(ctx); err != nil {
			log.Error("Flow store sweep failed", "error", err)
		} else if n > 0 {
			log.Debug("Swept expired flow records", "count", n)
		}
	}

	if n, err := tokens.DeleteExpired(ctx); err != nil {
		log.Error("Token sweep failed", "error", err)
	} else if n > 0 {
		log.Debug("Deleted expired tokens", "count", n)
	}

	if n := limiter.Cleanup(limiterIdleAfter); n > 0 {
		log.Debug("Removed idle rate limiters", "count", n)
	}
}

func closeFlowStore(flows core.FlowStore) {
	if redisStore, ok := flows.(*store.RedisStore); ok {
		redisStore.Close()
	}
}
