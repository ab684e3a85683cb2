package core

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateToken is returned by TokenStore.InsertToken when the token value is already stored.
var ErrDuplicateToken = errors.New("access token already exists")

// FlowStore keeps pending authorization requests and authorization codes.
//
// Consume methods find and delete a record in one atomic step: of any number of
// concurrent callers for the same key at most one receives the record. Missing,
// already consumed and expired records are indistinguishable to the caller.
type FlowStore interface {
	SaveAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) error
	ConsumeAuthorizationRequest(ctx context.Context, requestID string) (*AuthorizationRequest, error)

	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// TokenStore persists issued access tokens. Implementations must support concurrent inserts.
type TokenStore interface {
	InsertToken(ctx context.Context, token *AccessToken) (*AccessToken, error)
	FindTokenByValue(ctx context.Context, token string) (*AccessToken, error)
	// AssignTokenUser turns a stored token without a user into a session token
	// of userID expiring at expiredIn.
	AssignTokenUser(ctx context.Context, token, userID string, expiredIn time.Time) (*AccessToken, error)
}

// UserStore looks up accounts for the login step.
type UserStore interface {
	FindUserByName(ctx context.Context, name string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
}
