package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-training/authz-server/pkg/core"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if requests, codes := store.Len(); requests != 0 || codes != 0 {
		t.Errorf("new store has %d requests and %d codes", requests, codes)
	}
}

func TestMemoryStore_SaveAuthorizationRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *core.AuthorizationRequest
		wantErr error
	}{
		{
			name:    "valid request",
			req:     newTestRequest("Ab3dEf7h", time.Minute),
			wantErr: nil,
		},
		{
			name:    "nil request",
			req:     nil,
			wantErr: ErrNilAuthorizationRequest,
		},
		{
			name:    "empty id",
			req:     newTestRequest("", time.Minute),
			wantErr: ErrEmptyKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			err := store.SaveAuthorizationRequest(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SaveAuthorizationRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryStore_ConsumeAuthorizationRequest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	req := newTestRequest("Ab3dEf7h", time.Minute)
	if err := store.SaveAuthorizationRequest(ctx, req); err != nil {
		t.Fatalf("SaveAuthorizationRequest() error = %v", err)
	}

	// Mutating the caller's copy must not reach the stored record
	req.Scope = "admin"

	got, err := store.ConsumeAuthorizationRequest(ctx, "Ab3dEf7h")
	if err != nil {
		t.Fatalf("ConsumeAuthorizationRequest() error = %v", err)
	}
	if got.Scope != "read write" {
		t.Errorf("scope = %q, want %q", got.Scope, "read write")
	}

	tests := []struct {
		name string
		id   string
	}{
		{name: "already consumed", id: "Ab3dEf7h"},
		{name: "never stored", id: "unknown"},
		{name: "empty id", id: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.ConsumeAuthorizationRequest(ctx, tt.id); !errors.Is(err, ErrNotFound) {
				t.Errorf("ConsumeAuthorizationRequest(%q) error = %v, want %v", tt.id, err, ErrNotFound)
			}
		})
	}
}

func TestMemoryStore_DuplicateKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveAuthorizationCode(ctx, newTestCode("Code1234", time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if err := store.SaveAuthorizationCode(ctx, newTestCode("Code1234", time.Minute)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("duplicate save error = %v, want %v", err, ErrDuplicateKey)
	}

	// An expired entry may be replaced
	if err := store.SaveAuthorizationRequest(ctx, newTestRequest("Stale001", -time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationRequest() error = %v", err)
	}
	if err := store.SaveAuthorizationRequest(ctx, newTestRequest("Stale001", time.Minute)); err != nil {
		t.Errorf("replacing an expired request error = %v", err)
	}
}

func TestMemoryStore_ConsumeAuthorizationCode(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveAuthorizationCode(ctx, newTestCode("Code1234", time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if err := store.SaveAuthorizationCode(ctx, nil); !errors.Is(err, ErrNilAuthorizationCode) {
		t.Errorf("nil code error = %v", err)
	}

	got, err := store.ConsumeAuthorizationCode(ctx, "Code1234")
	if err != nil {
		t.Fatalf("ConsumeAuthorizationCode() error = %v", err)
	}
	if got.UserID != "user-1" || got.Request.RedirectURI != "https://example.com/callback" {
		t.Errorf("consumed code = %+v", got)
	}

	if _, err := store.ConsumeAuthorizationCode(ctx, "Code1234"); !errors.Is(err, ErrNotFound) {
		t.Errorf("replay error = %v, want %v", err, ErrNotFound)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	if err := store.SaveAuthorizationCode(ctx, newTestCode("Short001", time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if err := store.SaveAuthorizationRequest(ctx, newTestRequest("Short002", time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationRequest() error = %v", err)
	}
	if err := store.SaveAuthorizationRequest(ctx, newTestRequest("Long0001", time.Hour)); err != nil {
		t.Fatalf("SaveAuthorizationRequest() error = %v", err)
	}

	now = now.Add(2 * time.Minute)

	if _, err := store.ConsumeAuthorizationCode(ctx, "Short001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired code error = %v, want %v", err, ErrNotFound)
	}

	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep() removed %d entries, want 1", removed)
	}
	if requests, codes := store.Len(); requests != 1 || codes != 0 {
		t.Errorf("after sweep: %d requests, %d codes", requests, codes)
	}
	if _, err := store.ConsumeAuthorizationRequest(ctx, "Long0001"); err != nil {
		t.Errorf("live request error = %v", err)
	}
}

func TestMemoryStore_ConcurrentConsume(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveAuthorizationCode(ctx, newTestCode("Racecode", time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeAuthorizationCode(ctx, "Racecode"); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("%d goroutines consumed the code, want exactly 1", winners.Load())
	}
}

func TestMemoryStore_ConcurrentSave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A'+i%26)) + string(rune('a'+i/26))
			_ = store.SaveAuthorizationRequest(ctx, newTestRequest(id, time.Minute))
		}(i)
	}
	wg.Wait()

	if requests, _ := store.Len(); requests != 100 {
		t.Errorf("stored %d requests, want 100", requests)
	}
}
