// Package tokenclient obtains service tokens through the client_credentials grant.
package tokenclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-training/authz-server/pkg/config"
	"github.com/go-training/authz-server/pkg/core"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrMissingCredentials is returned when the client id or secret is not configured.
var ErrMissingCredentials = errors.New("client id and secret are required")

// Config describes the client the requester authenticates as.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	// Origin is sent as the Origin header of every token request.
	Origin string
	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
}

// FromConfig builds the requester configuration for the SNS client.
func FromConfig(cfg *config.Config) Config {
	sns, _ := cfg.FindClient(config.SNSClientName)
	return Config{
		ClientID:     sns.ID,
		ClientSecret: sns.Secret,
		TokenURL:     cfg.Origin.TokenEndpoint(),
		Scopes:       core.ParseScope(sns.Scope),
		Origin:       cfg.Origin.Self,
	}
}

// Requester performs the client_credentials grant. When a request fails at the
// transport level it switches the endpoint between http and https, keeps the
// switched endpoint for later calls and retries once.
type Requester struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	endpoint string
}

// New creates a Requester.
func New(cfg Config) *Requester {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client := *base
	client.Transport = &originTransport{origin: cfg.Origin, base: transport}

	return &Requester{
		cfg:      cfg,
		client:   &client,
		endpoint: cfg.TokenURL,
	}
}

// Endpoint returns the token URL the next request goes to.
func (r *Requester) Endpoint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoint
}

// RequestToken returns a fresh access token.
func (r *Requester) RequestToken(ctx context.Context) (string, error) {
	if r.cfg.ClientID == "" || r.cfg.ClientSecret == "" {
		return "", ErrMissingCredentials
	}

	endpoint := r.Endpoint()
	token, err := r.fetch(ctx, endpoint)
	if err == nil || !isTransportError(err) {
		return token, err
	}

	flipped := flipScheme(endpoint)
	core.LoggerFromCtx(ctx).Warn("token request failed, retrying with switched scheme",
		"endpoint", endpoint, "retry_endpoint", flipped, "error", err)

	r.mu.Lock()
	r.endpoint = flipped
	r.mu.Unlock()

	return r.fetch(ctx, flipped)
}

func (r *Requester) fetch(ctx context.Context, endpoint string) (string, error) {
	cc := clientcredentials.Config{
		ClientID:     r.cfg.ClientID,
		ClientSecret: r.cfg.ClientSecret,
		TokenURL:     endpoint,
		Scopes:       r.cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	token, err := cc.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch token from %s: %w", endpoint, err)
	}
	return token.AccessToken, nil
}

// isTransportError reports whether no HTTP response was received.
// An error status from the server is not a transport error.
func isTransportError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func flipScheme(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return "https://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return "http://" + strings.TrimPrefix(endpoint, "https://")
	default:
		return endpoint
	}
}

type originTransport struct {
	origin string
	base   http.RoundTripper
}

func (t *originTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.origin == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Origin", t.origin)
	return t.base.RoundTrip(req)
}
