package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/go-training/authz-server/pkg/core"

	"github.com/google/uuid"
)

// MemoryStore implements core.TokenStore and core.UserStore with in-process maps.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]core.AccessToken
	users  map[string]core.User
	byName map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]core.AccessToken),
		users:  make(map[string]core.User),
		byName: make(map[string]string),
	}
}

// InsertToken stores a token record and returns the stored copy with its id assigned.
func (m *MemoryStore) InsertToken(ctx context.Context, token *core.AccessToken) (*core.AccessToken, error) {
	if token == nil {
		return nil, ErrNilToken
	}
	if token.Token == "" {
		return nil, ErrEmptyToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tokens[token.Token]; exists {
		return nil, ErrDuplicateToken
	}

	stored := *token
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	m.tokens[stored.Token] = stored

	return &stored, nil
}

// FindTokenByValue returns the token record for a bearer value.
func (m *MemoryStore) FindTokenByValue(ctx context.Context, token string) (*core.AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &stored, nil
}

// AssignTokenUser binds an unowned token to userID.
func (m *MemoryStore) AssignTokenUser(ctx context.Context, token, userID string, expiredIn time.Time) (*core.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.tokens[token]
	if !ok || stored.UserID != "" {
		return nil, ErrNotFound
	}
	stored.UserID = userID
	stored.ExpiredIn = expiredIn
	stored.Outer = false
	m.tokens[token] = stored

	return &stored, nil
}

// CreateUser adds an account. The password must already be hashed.
func (m *MemoryStore) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	if user == nil || user.Name == "" {
		return nil, ErrInvalidUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[user.Name]; exists {
		return nil, ErrDuplicateUser
	}

	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	m.users[stored.ID] = stored
	m.byName[stored.Name] = stored.ID

	return &stored, nil
}

func (m *MemoryStore) FindUserByName(ctx context.Context, name string) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	user := m.users[id]
	return &user, nil
}

func (m *MemoryStore) FindUserByID(ctx context.Context, id string) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

// DeleteExpired drops tokens whose expiry has passed.
func (m *MemoryStore) DeleteExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := timeNow()
	removed := 0
	for value, token := range m.tokens {
		if !token.Valid(now) {
			delete(m.tokens, value)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
