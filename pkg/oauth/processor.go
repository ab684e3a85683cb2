// Package oauth implements the authorization and token endpoints' protocol logic.
package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/go-training/authz-server/pkg/config"
	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/randstr"
	"github.com/go-training/authz-server/pkg/store"
)

// maxKeyAttempts bounds regeneration when a fresh request id or code collides with a live one.
const maxKeyAttempts = 3

// ClientFinder resolves registered clients.
type ClientFinder interface {
	Find(clientID string) (*core.Client, bool)
}

// Settings are the lifetimes and grant behaviour of a Processor.
type Settings struct {
	RequestTTL time.Duration
	CodeTTL    time.Duration
	TokenTTL   time.Duration
	// PersistClientCredentialsTokens stores client_credentials tokens in the token store.
	PersistClientCredentialsTokens bool
}

// SettingsFromConfig derives processor settings from the auth configuration.
func SettingsFromConfig(cfg config.AuthConfig) Settings {
	return Settings{
		RequestTTL:                     cfg.RequestTTL,
		CodeTTL:                        cfg.CodeTTL,
		TokenTTL:                       cfg.TokenTTL(),
		PersistClientCredentialsTokens: cfg.PersistClientCredentialsTokens,
	}
}

// Processor runs the authorization and token state machines. It owns the
// pending requests and authorization codes in its FlowStore.
type Processor struct {
	clients  ClientFinder
	flows    core.FlowStore
	tokens   core.TokenStore
	settings Settings
	ids      *randstr.Generator
	now      func() time.Time
	inst     *instruments
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// WithGenerator replaces the identifier generator.
func WithGenerator(g *randstr.Generator) Option {
	return func(p *Processor) {
		p.ids = g
	}
}

// NewProcessor wires a Processor to its registry and stores.
func NewProcessor(clients ClientFinder, flows core.FlowStore, tokens core.TokenStore, settings Settings, opts ...Option) *Processor {
	p := &Processor{
		clients:  clients,
		flows:    flows,
		tokens:   tokens,
		settings: settings,
		ids:      randstr.New(),
		now:      time.Now,
		inst:     newInstruments(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// saveWithFreshKey generates a key of the given length and saves under it,
// regenerating when the store reports the key as taken.
func (p *Processor) saveWithFreshKey(ctx context.Context, length int, save func(key string) error) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := p.ids.String(length)
		if err != nil {
			return "", err
		}
		err = save(key)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
