package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/registry"
	"github.com/go-training/authz-server/pkg/store"
	"github.com/go-training/authz-server/pkg/tokenstore"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	processor *Processor
	flows     *store.MemoryStore
	tokens    *tokenstore.MemoryStore
	now       time.Time
}

func testClients() *registry.Registry {
	return registry.New(
		core.Client{
			ID:           "c1",
			Secret:       "s1",
			Name:         "Client One",
			RedirectURIs: []string{"https://a/cb"},
			Scope:        core.ParseScope("read write"),
		},
		core.Client{
			ID:           "c2",
			Secret:       "s2",
			Name:         "Client Two",
			RedirectURIs: []string{"https://b/cb?tenant=42"},
			Scope:        core.ParseScope("read"),
		},
		core.Client{
			ID:           "svc@example",
			Secret:       "p:ss word+1",
			Name:         "Service",
			RedirectURIs: []string{"https://svc/cb"},
			Scope:        core.ParseScope("read write delete"),
		},
		core.Client{
			ID:           "nosecret",
			Name:         "No Secret",
			RedirectURIs: []string{"https://n/cb"},
			Scope:        core.ParseScope("read"),
		},
	)
}

func newFixture(t *testing.T, settings ...Settings) *fixture {
	t.Helper()

	s := Settings{
		RequestTTL: 10 * time.Minute,
		CodeTTL:    10 * time.Minute,
		TokenTTL:   12 * time.Hour,
	}
	if len(settings) > 0 {
		s = settings[0]
	}

	f := &fixture{
		flows:  store.NewMemoryStore(),
		tokens: tokenstore.NewMemoryStore(),
		now:    time.Now(),
	}
	f.processor = NewProcessor(testClients(), f.flows, f.tokens, s, WithClock(func() time.Time { return f.now }))
	return f
}

func strPtr(s string) *string {
	return &s
}

func basicAuth(id, secret string) string {
	raw := url.QueryEscape(id) + ":" + url.QueryEscape(secret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// authorize pends a request for c1 and returns its view.
func (f *fixture) authorize(t *testing.T, scope string, state *string) *core.RequestView {
	t.Helper()

	view, err := f.processor.ProcessAuthorizationRequest(context.Background(), AuthorizationParams{
		ResponseType: ResponseTypeCode,
		Scope:        scope,
		ClientID:     "c1",
		RedirectURI:  "https://a/cb",
		State:        state,
	})
	require.NoError(t, err)
	return view
}

// code runs authorize and approve for c1 and returns the issued code.
func (f *fixture) code(t *testing.T, scope, userID string) string {
	t.Helper()

	view := f.authorize(t, scope, strPtr("st"))
	redirectURL, err := f.processor.Approve(context.Background(), *view, userID, "true")
	require.NoError(t, err)

	u, err := url.Parse(redirectURL)
	require.NoError(t, err)
	return u.Query().Get("code")
}

func requireJSONError(t *testing.T, err error, status int, code string, reason error) {
	t.Helper()

	var jsonErr *JSONError
	require.ErrorAs(t, err, &jsonErr)
	require.Equal(t, status, jsonErr.Status)
	require.Equal(t, code, jsonErr.Body.Error)
	if reason != nil {
		require.ErrorIs(t, err, reason)
	}
}

func requireRedirectError(t *testing.T, err error, reason error) *url.URL {
	t.Helper()

	var redirectErr *RedirectError
	require.ErrorAs(t, err, &redirectErr)
	require.ErrorIs(t, err, reason)

	u, parseErr := url.Parse(redirectErr.URL)
	require.NoError(t, parseErr)
	return u
}

// failingFlowStore fails every call with err.
type failingFlowStore struct {
	err error
}

func (s failingFlowStore) SaveAuthorizationRequest(context.Context, *core.AuthorizationRequest) error {
	return s.err
}

func (s failingFlowStore) ConsumeAuthorizationRequest(context.Context, string) (*core.AuthorizationRequest, error) {
	return nil, s.err
}

func (s failingFlowStore) SaveAuthorizationCode(context.Context, *core.AuthorizationCode) error {
	return s.err
}

func (s failingFlowStore) ConsumeAuthorizationCode(context.Context, string) (*core.AuthorizationCode, error) {
	return nil, s.err
}

var errBackendDown = errors.New("backend down")
