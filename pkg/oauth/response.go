package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Internal rejection reasons. They travel inside RedirectError and JSONError
// and are matched with errors.Is; the wire surface stays uniform.
var (
	ErrUnknownClient           = errors.New("unknown client")
	ErrRedirectURIMismatch     = errors.New("mismatched redirect URI")
	ErrInvalidScope            = errors.New("invalid scope")
	ErrNothingRequest          = errors.New("nothing request")
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrDenied                  = errors.New("oauth denied")
	ErrMissingAuthorization    = errors.New("missing authorization header")
	ErrMalformedAuthorization  = errors.New("malformed authorization header")
	ErrInvalidClient           = errors.New("invalid client credentials")
	ErrInvalidGrant            = errors.New("invalid grant")
	ErrUnsupportedGrantType    = errors.New("unsupported grant type")
	ErrMissingCredentials      = errors.New("missing name or password")
	ErrIncorrectCredentials    = errors.New("incorrect name or password")
)

// Error codes written to JSON error bodies.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeInvalidScope         = "invalid_scope"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeServerError          = "server_error"
)

// Grant types accepted by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
)

// RedirectError is a rejection delivered to the client by redirecting the
// browser to URL, which carries an error query parameter.
type RedirectError struct {
	URL    string
	Reason error
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect with error: %v", e.Reason)
}

func (e *RedirectError) Unwrap() error {
	return e.Reason
}

// ErrorBody is the JSON error document.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSONError is a rejection delivered as a JSON body with an HTTP status.
type JSONError struct {
	Status int
	Body   ErrorBody
	Reason error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("%d %s: %v", e.Status, e.Body.Error, e.Reason)
}

func (e *JSONError) Unwrap() error {
	return e.Reason
}

// TokenResponse is the successful token endpoint document.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	UserID      string `json:"user_id,omitempty"`
}

func badRequest(code string, reason error) *JSONError {
	return &JSONError{Status: http.StatusBadRequest, Body: ErrorBody{Error: code}, Reason: reason}
}

func unauthorized(reason error) *JSONError {
	return &JSONError{Status: http.StatusUnauthorized, Body: ErrorBody{Error: CodeInvalidClient}, Reason: reason}
}

func serverError(reason error) *JSONError {
	return &JSONError{Status: http.StatusInternalServerError, Body: ErrorBody{Error: CodeServerError}, Reason: reason}
}

// redirectWithError appends error=<message> to the redirect URI. A redirect
// URI that does not parse yields a server error instead.
func redirectWithError(redirectURI, message string, reason error) error {
	target, err := appendQuery(redirectURI, map[string]*string{"error": &message})
	if err != nil {
		return serverError(fmt.Errorf("build error redirect: %w", err))
	}
	return &RedirectError{URL: target, Reason: reason}
}

// appendQuery sets the non-nil params on base, keeping any query it already has.
func appendQuery(base string, params map[string]*string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}
	q := u.Query()
	for key, value := range params {
		if value != nil {
			q.Set(key, *value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// reasonOf returns the innermost sentinel for logs and metrics.
func reasonOf(err error) string {
	var (
		redirectErr *RedirectError
		jsonErr     *JSONError
	)
	switch {
	case errors.As(err, &redirectErr) && redirectErr.Reason != nil:
		return redirectErr.Reason.Error()
	case errors.As(err, &jsonErr) && jsonErr.Reason != nil:
		return jsonErr.Reason.Error()
	default:
		return err.Error()
	}
}
