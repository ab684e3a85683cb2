package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/randstr"
	"github.com/go-training/authz-server/pkg/store"

	"go.opentelemetry.io/otel/attribute"
)

// ResponseTypeCode is the only supported response type.
const ResponseTypeCode = "code"

// AuthorizationParams are the query parameters of an authorization request.
// A nil State means the parameter was absent.
type AuthorizationParams struct {
	ResponseType string
	Scope        string
	ClientID     string
	RedirectURI  string
	State        *string
}

// ProcessAuthorizationRequest validates the request against the registry and
// pends it under a fresh request id. Rejections are *JSONError values; the
// redirect URI is never used for them because it is not trusted yet.
func (p *Processor) ProcessAuthorizationRequest(ctx context.Context, params AuthorizationParams) (*core.RequestView, error) {
	ctx, span := p.inst.start(ctx, "oauth.authorize", attribute.String(AttrClientID, params.ClientID))
	defer span.End()

	p.inst.authorizations.Add(ctx, 1)

	view, err := p.processAuthorizationRequest(ctx, params)
	if err != nil {
		p.inst.reject(ctx, span, "authorization request", err, "client_id", params.ClientID)
		return nil, err
	}

	p.inst.succeed(span)
	return view, nil
}

func (p *Processor) processAuthorizationRequest(ctx context.Context, params AuthorizationParams) (*core.RequestView, error) {
	client, ok := p.clients.Find(params.ClientID)
	if !ok {
		return nil, badRequest(CodeInvalidRequest, ErrUnknownClient)
	}

	if !client.HasRedirectURI(params.RedirectURI) {
		return nil, badRequest(CodeInvalidRequest, fmt.Errorf("%w: %q", ErrRedirectURIMismatch, params.RedirectURI))
	}

	scope := core.ParseScope(params.Scope)
	if !scope.SubsetOf(client.Scope) {
		return nil, badRequest(CodeInvalidRequest, fmt.Errorf("%w: %q", ErrInvalidScope, params.Scope))
	}

	now := p.now()
	req := core.AuthorizationRequest{
		ResponseType: params.ResponseType,
		ClientID:     params.ClientID,
		RedirectURI:  params.RedirectURI,
		Scope:        scope.String(),
		State:        params.State,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(p.settings.RequestTTL).Unix(),
	}

	requestID, err := p.saveWithFreshKey(ctx, randstr.RequestIDLength, func(key string) error {
		req.ID = key
		return p.flows.SaveAuthorizationRequest(ctx, &req)
	})
	if err != nil {
		return nil, serverError(fmt.Errorf("save authorization request: %w", err))
	}

	return &core.RequestView{
		RequestID:  requestID,
		Scope:      req.Scope,
		ClientName: client.Name,
	}, nil
}

// Approve consumes the pending request named by view.RequestID and answers it.
//
// On success it returns the client's redirect URI carrying code and state.
// A denial or a failed check after the request was found is a *RedirectError
// whose URL carries the error. A missing, expired or replayed request id is a
// *JSONError: there is no trusted redirect URI to send the browser to.
func (p *Processor) Approve(ctx context.Context, view core.RequestView, userID string, approve string) (string, error) {
	ctx, span := p.inst.start(ctx, "oauth.approve")
	defer span.End()

	redirectURL, clientID, err := p.approve(ctx, view, userID, approve)
	span.SetAttributes(attribute.String(AttrClientID, clientID))
	if err != nil {
		p.inst.reject(ctx, span, "approval", err, "client_id", clientID)
		return "", err
	}

	p.inst.codesIssued.Add(ctx, 1)
	p.inst.succeed(span)
	return redirectURL, nil
}

func (p *Processor) approve(ctx context.Context, view core.RequestView, userID string, approve string) (string, string, error) {
	// Removing the pending request first means concurrent approvals of the same id mint at most one code.
	req, err := p.flows.ConsumeAuthorizationRequest(ctx, view.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", badRequest(CodeInvalidRequest, ErrNothingRequest)
		}
		return "", "", serverError(fmt.Errorf("consume authorization request: %w", err))
	}

	if approve != "true" {
		return "", req.ClientID, redirectWithError(req.RedirectURI, "oauth denied", ErrDenied)
	}

	if req.ResponseType != ResponseTypeCode {
		return "", req.ClientID, redirectWithError(req.RedirectURI, "unsupported response type",
			fmt.Errorf("%w: %q", ErrUnsupportedResponseType, req.ResponseType))
	}

	client, ok := p.clients.Find(req.ClientID)
	if !ok {
		return "", req.ClientID, badRequest(CodeInvalidRequest, ErrUnknownClient)
	}

	approved := core.ParseScope(view.Scope)
	if !approved.SubsetOf(client.Scope) {
		return "", req.ClientID, redirectWithError(req.RedirectURI, "Invalid scope "+view.Scope,
			fmt.Errorf("%w: %q", ErrInvalidScope, view.Scope))
	}

	now := p.now()
	authCode := core.AuthorizationCode{
		Request:       *req,
		ApprovedScope: approved.String(),
		UserID:        userID,
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(p.settings.CodeTTL).Unix(),
	}
	code, err := p.saveWithFreshKey(ctx, randstr.CodeLength, func(key string) error {
		authCode.Code = key
		return p.flows.SaveAuthorizationCode(ctx, &authCode)
	})
	if err != nil {
		return "", req.ClientID, serverError(fmt.Errorf("save authorization code: %w", err))
	}

	redirectURL, err := appendQuery(req.RedirectURI, map[string]*string{
		"code":  &code,
		"state": req.State,
	})
	if err != nil {
		return "", req.ClientID, serverError(err)
	}
	return redirectURL, req.ClientID, nil
}
