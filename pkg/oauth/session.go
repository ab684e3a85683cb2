package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/go-training/authz-server/pkg/tokenstore"

	"golang.org/x/crypto/bcrypt"
)

// TokenRequester obtains a service token for a freshly logged in user.
type TokenRequester interface {
	RequestToken(ctx context.Context) (string, error)
}

// Session is the outcome of a successful login.
type Session struct {
	User      *core.User
	Token     string
	ExpiresAt time.Time
}

// Sessions checks session tokens and logs users in.
type Sessions struct {
	users     core.UserStore
	tokens    core.TokenStore
	requester TokenRequester
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewSessions creates a Sessions service.
func NewSessions(users core.UserStore, tokens core.TokenStore, requester TokenRequester, tokenTTL time.Duration) *Sessions {
	return &Sessions{
		users:     users,
		tokens:    tokens,
		requester: requester,
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// Check resolves a session token to its user. An empty, unknown or expired
// token, or one without a live user, is not authenticated.
func (s *Sessions) Check(ctx context.Context, token string) (*core.User, bool) {
	record, ok := s.CheckToken(ctx, token)
	if !ok || record.UserID == "" {
		return nil, false
	}

	user, err := s.users.FindUserByID(ctx, record.UserID)
	if err != nil {
		return nil, false
	}
	return user, true
}

// CheckToken resolves a bearer token to its live record. Client tokens without a user are accepted.
func (s *Sessions) CheckToken(ctx context.Context, token string) (*core.AccessToken, bool) {
	if token == "" {
		return nil, false
	}

	record, err := s.tokens.FindTokenByValue(ctx, token)
	if err != nil {
		return nil, false
	}
	if !record.Valid(s.now()) {
		return nil, false
	}
	return record, true
}

// Login verifies the credentials, obtains a session token and stores it.
// Bad input is reported as ErrMissingCredentials or ErrIncorrectCredentials.
func (s *Sessions) Login(ctx context.Context, name, password string) (*Session, error) {
	if name == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.users.FindUserByName(ctx, name)
	if errors.Is(err, tokenstore.ErrNotFound) {
		// An unknown user looks like a wrong password to the caller.
		return nil, ErrIncorrectCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrIncorrectCredentials
	}

	token, err := s.requester.RequestToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("request session token: %w", err)
	}
	if token == "" {
		return nil, errors.New("request session token: empty access token")
	}

	expiresAt := s.now().Add(s.tokenTTL)
	_, err = s.tokens.InsertToken(ctx, &core.AccessToken{
		Token:     token,
		UserID:    user.ID,
		ExpiredIn: expiresAt,
		Outer:     false,
	})
	if errors.Is(err, core.ErrDuplicateToken) {
		// The token endpoint already persisted it as a client_credentials token.
		_, err = s.tokens.AssignTokenUser(ctx, token, user.ID, expiresAt)
	}
	if err != nil {
		return nil, fmt.Errorf("store session token: %w", err)
	}

	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
