// Package tokenstore persists access tokens and user accounts.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-training/authz-server/pkg/config"
	"github.com/go-training/authz-server/pkg/core"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when no token or user matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrNilToken is returned when inserting a nil token.
	ErrNilToken = errors.New("access token cannot be nil")
	// ErrEmptyToken is returned when inserting a token without a value.
	ErrEmptyToken = errors.New("access token value cannot be empty")
	// ErrDuplicateToken is returned when the token value is already stored.
	ErrDuplicateToken = core.ErrDuplicateToken
	// ErrInvalidUser is returned when creating a user without a name.
	ErrInvalidUser = errors.New("user must have a name")
	// ErrDuplicateUser is returned when the user name is taken.
	ErrDuplicateUser = errors.New("user name already exists")
)

var timeNow = time.Now

// Store is the full persistence surface used by the server process.
type Store interface {
	core.TokenStore
	core.UserStore
	CreateUser(ctx context.Context, user *core.User) (*core.User, error)
	DeleteExpired(ctx context.Context) (int, error)
	Close() error
}

// New opens the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.TokenStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "mysql":
		db, err := Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := NewMySQLStore(db)
		if err := store.ApplySchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported token store type: %s", cfg.Type)
	}
}

// SeedUser creates the named account with a bcrypt hash of password.
// An existing account with the same name is left untouched.
func SeedUser(ctx context.Context, store Store, name, password string) (*core.User, error) {
	if existing, err := store.FindUserByName(ctx, name); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password for %s: %w", name, err)
	}

	return store.CreateUser(ctx, &core.User{
		Name:         name,
		PasswordHash: string(hash),
	})
}
