package core

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		size  int
	}{
		{name: "empty", input: "", want: "", size: 0},
		{name: "single", input: "read", want: "read", size: 1},
		{name: "multiple", input: "read write", want: "read write", size: 2},
		{name: "extra spaces", input: " read  write ", want: "read write", size: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseScope(tt.input)
			if len(got) != tt.size {
				t.Errorf("ParseScope(%q) has %d tokens, want %d", tt.input, len(got), tt.size)
			}
			if got.String() != tt.want {
				t.Errorf("ParseScope(%q).String() = %q, want %q", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestScope_SubsetOf(t *testing.T) {
	allowed := ParseScope("read write delete")

	tests := []struct {
		name  string
		scope string
		want  bool
	}{
		{name: "empty is subset", scope: "", want: true},
		{name: "single member", scope: "read", want: true},
		{name: "all members", scope: "delete read write", want: true},
		{name: "unknown token", scope: "read admin", want: false},
		{name: "case sensitive", scope: "READ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseScope(tt.scope).SubsetOf(allowed); got != tt.want {
				t.Errorf("SubsetOf(%q) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestClient_HasRedirectURI(t *testing.T) {
	c := &Client{RedirectURIs: []string{"https://a/cb"}}

	if !c.HasRedirectURI("https://a/cb") {
		t.Error("registered URI should match")
	}
	for _, uri := range []string{"https://a/cb/", "https://A/cb", "https://a/cb?x=1", ""} {
		if c.HasRedirectURI(uri) {
			t.Errorf("HasRedirectURI(%q) should be false", uri)
		}
	}
}

func TestExpired(t *testing.T) {
	now := time.Unix(1000, 0)

	if Expired(0, now) {
		t.Error("zero expiry should never expire")
	}
	if !Expired(1000, now) {
		t.Error("expiry equal to now should be expired")
	}
	if Expired(1001, now) {
		t.Error("future expiry should not be expired")
	}
}

func TestAccessToken_Valid(t *testing.T) {
	now := time.Now()
	token := &AccessToken{ExpiredIn: now.Add(time.Hour)}

	if !token.Valid(now) {
		t.Error("token should be valid before expiry")
	}
	if token.Valid(now.Add(time.Hour)) {
		t.Error("token should be invalid at expiry")
	}
}

func TestBearerFromRequest(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "Bearer", want: ""},
	}

	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := BearerFromRequest(r); got != tt.want {
			t.Errorf("BearerFromRequest(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" {
		t.Error("empty context should have no request id")
	}

	ctx = WithRequestID(ctx)
	if RequestIDFromContext(ctx) == "" {
		t.Error("WithRequestID should set a request id")
	}
}
