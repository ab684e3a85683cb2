package core

import (
	"slices"
	"strings"
	"time"
)

// Scope is a set of capability tokens. On the wire it is space-delimited.
type Scope []string

// ParseScope splits a space-delimited scope string. An empty string yields an empty scope.
func ParseScope(s string) Scope {
	return Scope(strings.Fields(s))
}

// String joins the scope tokens with single spaces.
func (s Scope) String() string {
	return strings.Join(s, " ")
}

// Contains reports whether token is a member of the scope.
func (s Scope) Contains(token string) bool {
	return slices.Contains(s, token)
}

// SubsetOf reports whether every token of s is a member of allowed.
// The empty scope is a subset of every scope.
func (s Scope) SubsetOf(allowed Scope) bool {
	for _, token := range s {
		if !allowed.Contains(token) {
			return false
		}
	}
	return true
}

// Client represents an OAuth 2.0 client application registered with the authorization server.
type Client struct {
	ID           string   `json:"client_id"`
	Secret       string   `json:"-"`
	Name         string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scope        Scope    `json:"scope"`
}

// HasRedirectURI reports whether uri is registered for the client. Matching is exact.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AuthorizationRequest is the pending record kept while the user decides on approval.
type AuthorizationRequest struct {
	ID           string  `json:"request_id"`
	ResponseType string  `json:"response_type"`
	ClientID     string  `json:"client_id"`
	RedirectURI  string  `json:"redirect_uri"`
	Scope        string  `json:"scope"`
	State        *string `json:"state,omitempty"`
	CreatedAt    int64   `json:"created_at"`
	ExpiresAt    int64   `json:"expires_at"`
}

// RequestView is what the approval step gets to see of a pending request.
type RequestView struct {
	RequestID  string `json:"request_id"`
	Scope      string `json:"scope"`
	ClientName string `json:"client_name"`
}

// AuthorizationCode represents a single-use OAuth 2.0 authorization code and its associated metadata.
type AuthorizationCode struct {
	Code          string               `json:"code"`
	Request       AuthorizationRequest `json:"raw_request"`
	ApprovedScope string               `json:"scope"`
	UserID        string               `json:"user_id"`
	CreatedAt     int64                `json:"created_at"`
	ExpiresAt     int64                `json:"expires_at"`
}

// Expired reports whether a record with the given unix expiry is no longer usable.
// A zero expiry never expires.
func Expired(expiresAt int64, now time.Time) bool {
	return expiresAt != 0 && now.Unix() >= expiresAt
}

// AccessToken is a persisted bearer credential.
// UserID is empty for tokens issued through the client_credentials grant.
// Outer marks tokens issued to third-party OAuth clients rather than login sessions.
type AccessToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiredIn time.Time `json:"expired_in"`
	Outer     bool      `json:"outer"`
}

// Valid reports whether the token is still usable at now.
func (t *AccessToken) Valid(now time.Time) bool {
	return now.Before(t.ExpiredIn)
}

// User is an account able to log in and approve authorization requests.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}
