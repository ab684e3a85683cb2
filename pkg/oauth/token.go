package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/randstr"
	"github.com/go-training/authz-server/pkg/store"

	"go.opentelemetry.io/otel/attribute"
)

// TokenRequest is the form body of a token request.
type TokenRequest struct {
	GrantType   string
	Code        string
	RedirectURI string
	Scope       string
}

// SupportedGrantType reports whether the token endpoint handles grantType.
// The transport checks this before client authentication.
func SupportedGrantType(grantType string) bool {
	return grantType == GrantTypeAuthorizationCode || grantType == GrantTypeClientCredentials
}

// IssueToken authenticates the client from the Basic authorization header and
// runs the requested grant. Every rejection is a *JSONError.
func (p *Processor) IssueToken(ctx context.Context, authorizationHeader string, req TokenRequest) (*TokenResponse, error) {
	ctx, span := p.inst.start(ctx, "oauth.token", attribute.String(AttrGrantType, req.GrantType))
	defer span.End()

	client, err := p.authenticateClient(authorizationHeader)
	if err != nil {
		p.inst.reject(ctx, span, "token request", err, "grant_type", req.GrantType)
		return nil, err
	}
	span.SetAttributes(attribute.String(AttrClientID, client.ID))

	var resp *TokenResponse
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		resp, err = p.exchangeCode(ctx, client, req)
	case GrantTypeClientCredentials:
		resp, err = p.clientCredentials(ctx, client, req)
	default:
		err = badRequest(CodeUnsupportedGrantType, fmt.Errorf("%w: %q", ErrUnsupportedGrantType, req.GrantType))
	}
	if err != nil {
		p.inst.reject(ctx, span, "token request", err, "client_id", client.ID, "grant_type", req.GrantType)
		return nil, err
	}

	p.inst.tokensIssued.Add(ctx, 1, metricAttrs(req.GrantType))
	p.inst.succeed(span)
	return resp, nil
}

// authenticateClient resolves the client named in a Basic authorization header
// and checks its secret. Both halves of the credential are form-decoded.
func (p *Processor) authenticateClient(header string) (*core.Client, error) {
	if header == "" {
		return nil, unauthorized(ErrMissingAuthorization)
	}

	scheme, encoded, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return nil, unauthorized(ErrMalformedAuthorization)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, badRequest(CodeInvalidClient, ErrMalformedAuthorization)
	}
	rawID, rawSecret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, badRequest(CodeInvalidClient, ErrMalformedAuthorization)
	}
	clientID, err := url.QueryUnescape(rawID)
	if err != nil {
		return nil, badRequest(CodeInvalidClient, ErrMalformedAuthorization)
	}
	secret, err := url.QueryUnescape(rawSecret)
	if err != nil {
		return nil, badRequest(CodeInvalidClient, ErrMalformedAuthorization)
	}

	client, ok := p.clients.Find(clientID)
	if !ok {
		return nil, badRequest(CodeInvalidClient, fmt.Errorf("%w: %w", ErrInvalidClient, ErrUnknownClient))
	}
	// A client without a configured secret can never authenticate.
	if client.Secret == "" || subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) != 1 {
		return nil, badRequest(CodeInvalidClient, ErrInvalidClient)
	}

	return client, nil
}

func (p *Processor) exchangeCode(ctx context.Context, client *core.Client, req TokenRequest) (*TokenResponse, error) {
	code, err := p.flows.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, badRequest(CodeInvalidGrant, ErrInvalidGrant)
		}
		return nil, serverError(fmt.Errorf("consume authorization code: %w", err))
	}

	// Same answer as an unknown code, so callers cannot probe for codes issued to other clients.
	if code.Request.ClientID != client.ID {
		return nil, badRequest(CodeInvalidGrant, fmt.Errorf("%w: code issued to another client", ErrInvalidGrant))
	}
	if req.RedirectURI != "" && req.RedirectURI != code.Request.RedirectURI {
		return nil, badRequest(CodeInvalidGrant, fmt.Errorf("%w: %w", ErrInvalidGrant, ErrRedirectURIMismatch))
	}

	token, err := p.mintToken(ctx, code.UserID)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		Scope:       code.Request.Scope,
		UserID:      code.UserID,
	}, nil
}

func (p *Processor) clientCredentials(ctx context.Context, client *core.Client, req TokenRequest) (*TokenResponse, error) {
	scope := core.ParseScope(req.Scope)
	if !scope.SubsetOf(client.Scope) {
		return nil, badRequest(CodeInvalidScope, fmt.Errorf("%w: %q", ErrInvalidScope, req.Scope))
	}

	var (
		token string
		err   error
	)
	if p.settings.PersistClientCredentialsTokens {
		token, err = p.mintToken(ctx, "")
	} else {
		token, err = p.ids.String(randstr.TokenLength)
		if err != nil {
			err = serverError(fmt.Errorf("generate access token: %w", err))
		}
	}
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		Scope:       scope.String(),
	}, nil
}

// mintToken generates an access token for a third-party client and persists it.
func (p *Processor) mintToken(ctx context.Context, userID string) (string, error) {
	value, err := p.ids.String(randstr.TokenLength)
	if err != nil {
		return "", serverError(fmt.Errorf("generate access token: %w", err))
	}

	_, err = p.tokens.InsertToken(ctx, &core.AccessToken{
		Token:     value,
		UserID:    userID,
		ExpiredIn: p.now().Add(p.settings.TokenTTL),
		Outer:     true,
	})
	if err != nil {
		return "", serverError(fmt.Errorf("insert access token: %w", err))
	}

	return value, nil
}
