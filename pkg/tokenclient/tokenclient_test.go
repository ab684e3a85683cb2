package tokenclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-training/authz-server/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer answers client_credentials requests and counts them.
func tokenServer(t *testing.T, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sns%2Fclient", id, "client id halves are form-encoded")
		assert.Equal(t, "s3cret", secret)
		assert.Equal(t, "https://auth.example.com", r.Header.Get("Origin"))
		assert.Equal(t, "/token", r.URL.Path)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "read write delete", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"scope":        "read write delete",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) Config {
	return Config{
		ClientID:     "sns/client",
		ClientSecret: "s3cret",
		TokenURL:     tokenURL,
		Scopes:       []string{"read", "write", "delete"},
		Origin:       "https://auth.example.com",
	}
}

func TestRequester_RequestToken(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, http.StatusOK, &calls)

	r := New(testConfig(srv.URL + "/token"))
	token, err := r.RequestToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, srv.URL+"/token", r.Endpoint())
}

func TestRequester_MissingCredentials(t *testing.T) {
	for _, cfg := range []Config{
		{ClientID: "", ClientSecret: "s", TokenURL: "http://localhost/token"},
		{ClientID: "id", ClientSecret: "", TokenURL: "http://localhost/token"},
	} {
		_, err := New(cfg).RequestToken(context.Background())
		assert.ErrorIs(t, err, ErrMissingCredentials)
	}
}

func TestRequester_FlipsSchemeOnTransportError(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, http.StatusOK, &calls)

	// A TLS handshake against the plain HTTP test server fails before any response.
	httpsURL := strings.Replace(srv.URL, "http://", "https://", 1) + "/token"
	r := New(testConfig(httpsURL))

	token, err := r.RequestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	assert.Equal(t, srv.URL+"/token", r.Endpoint(), "switched endpoint is remembered")

	_, err = r.RequestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRequester_NoRetryOnErrorStatus(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, http.StatusUnauthorized, &calls)

	r := New(testConfig(srv.URL + "/token"))
	_, err := r.RequestToken(context.Background())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, srv.URL+"/token", r.Endpoint())
}

func TestRequester_RetriesExactlyOnce(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	closedURL := srv.URL + "/token"
	srv.Close()

	r := New(testConfig(closedURL))
	_, err := r.RequestToken(context.Background())

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(r.Endpoint(), "https://"))
}

func TestFlipScheme(t *testing.T) {
	tests := map[string]string{
		"http://a/token":  "https://a/token",
		"https://a/token": "http://a/token",
		"ftp://a/token":   "ftp://a/token",
	}
	for in, want := range tests {
		assert.Equal(t, want, flipScheme(in), in)
	}
}

func TestFromConfig(t *testing.T) {
	t.Setenv("SNS_ORIGIN", "http://sns.local")
	t.Setenv("ORIGIN", "http://auth.local")
	t.Setenv("SNS_CLIENT_ID", "sns")
	t.Setenv("SNS_SECRET_ID", "secret")
	t.Setenv("TWS_CLIENT_ID", "tws")

	cfg, err := config.Load()
	require.NoError(t, err)

	got := FromConfig(cfg)
	assert.Equal(t, "sns", got.ClientID)
	assert.Equal(t, "secret", got.ClientSecret)
	assert.Equal(t, "http://sns.local/token", got.TokenURL)
	assert.Equal(t, "http://auth.local", got.Origin)
	assert.Equal(t, []string{"read", "write", "delete"}, got.Scopes)
}
