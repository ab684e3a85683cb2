package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-training/authz-server/pkg/core"
)

var (
	// ErrNotFound is returned when a request or code is missing, already consumed or expired.
	ErrNotFound = errors.New("flow record not found")
	// ErrDuplicateKey is returned when saving under a key that is still live.
	ErrDuplicateKey = errors.New("flow record key already in use")
	// ErrNilAuthorizationRequest is returned when attempting to save a nil request.
	ErrNilAuthorizationRequest = errors.New("authorization request cannot be nil")
	// ErrNilAuthorizationCode is returned when attempting to save a nil authorization code.
	ErrNilAuthorizationCode = errors.New("authorization code cannot be nil")
	// ErrEmptyKey is returned when the request id or code string is empty.
	ErrEmptyKey = errors.New("flow record key cannot be empty")
)

type entry[T any] struct {
	value     *T
	expiresAt int64
}

// singleUse is a keyed table whose reads remove the entry.
type singleUse[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
}

func newSingleUse[T any]() *singleUse[T] {
	return &singleUse[T]{entries: make(map[string]entry[T])}
}

func (s *singleUse[T]) put(key string, value *T, expiresAt int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok && !core.Expired(existing.expiresAt, now) {
		return ErrDuplicateKey
	}
	s.entries[key] = entry[T]{value: value, expiresAt: expiresAt}
	return nil
}

// take removes and returns the entry under key in one critical section.
func (s *singleUse[T]) take(key string, now time.Time) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, key)
	if core.Expired(e.expiresAt, now) {
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (s *singleUse[T]) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if core.Expired(e.expiresAt, now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *singleUse[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// MemoryStore implements the core.FlowStore interface using in-memory maps.
// It is safe for concurrent use within a single process.
type MemoryStore struct {
	requests *singleUse[core.AuthorizationRequest]
	codes    *singleUse[core.AuthorizationCode]
	now      func() time.Time
}

// NewMemoryStore creates a new instance of MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: newSingleUse[core.AuthorizationRequest](),
		codes:    newSingleUse[core.AuthorizationCode](),
		now:      time.Now,
	}
}

// SaveAuthorizationRequest stores a pending request under its id.
func (m *MemoryStore) SaveAuthorizationRequest(ctx context.Context, req *core.AuthorizationRequest) error {
	if req == nil {
		return ErrNilAuthorizationRequest
	}
	if req.ID == "" {
		return ErrEmptyKey
	}
	stored := *req
	return m.requests.put(req.ID, &stored, req.ExpiresAt, m.now())
}

// ConsumeAuthorizationRequest removes and returns the pending request.
func (m *MemoryStore) ConsumeAuthorizationRequest(ctx context.Context, requestID string) (*core.AuthorizationRequest, error) {
	if requestID == "" {
		return nil, ErrNotFound
	}
	return m.requests.take(requestID, m.now())
}

// SaveAuthorizationCode stores an authorization code in memory.
func (m *MemoryStore) SaveAuthorizationCode(ctx context.Context, code *core.AuthorizationCode) error {
	if code == nil {
		return ErrNilAuthorizationCode
	}
	if code.Code == "" {
		return ErrEmptyKey
	}
	stored := *code
	return m.codes.put(code.Code, &stored, code.ExpiresAt, m.now())
}

// ConsumeAuthorizationCode removes and returns the authorization code.
func (m *MemoryStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	return m.codes.take(code, m.now())
}

// Sweep drops expired requests and codes and reports how many were removed.
func (m *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	return m.requests.sweep(now) + m.codes.sweep(now), nil
}

// Len reports the number of stored requests and codes, expired ones included.
func (m *MemoryStore) Len() (requests, codes int) {
	return m.requests.len(), m.codes.len()
}
