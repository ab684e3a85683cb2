package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-training/authz-server/pkg/core"
	"github.com/redis/rueidis"
)

const (
	// Key prefixes for Redis storage
	requestPrefix  = "authz:request:"
	authCodePrefix = "authz:code:"
)

// RedisStore implements the core.FlowStore interface using Redis via rueidis.
// Records are written with SET NX EX and consumed with GETDEL, so a record is
// handed out at most once even across several server instances.
type RedisStore struct {
	client rueidis.Client
	now    func() time.Time
}

// NewRedisStore creates a new instance of RedisStore with the provided rueidis client.
func NewRedisStore(client rueidis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

// RedisOptions contains configuration for Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStoreFromOptions creates a new RedisStore with simplified options.
func NewRedisStoreFromOptions(opts RedisOptions) (*RedisStore, error) {
	clientOpts := rueidis.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	}
	return NewRedisStoreFromClientOption(clientOpts)
}

// NewRedisStoreFromClientOption creates a new RedisStore with full rueidis client options.
func NewRedisStoreFromClientOption(opts rueidis.ClientOption) (*RedisStore, error) {
	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return NewRedisStore(client), nil
}

// Close closes the Redis client connection.
func (r *RedisStore) Close() {
	r.client.Close()
}

// SaveAuthorizationRequest stores a pending request with a TTL derived from its expiry.
func (r *RedisStore) SaveAuthorizationRequest(ctx context.Context, req *core.AuthorizationRequest) error {
	if req == nil {
		return ErrNilAuthorizationRequest
	}
	if req.ID == "" {
		return ErrEmptyKey
	}
	return r.save(ctx, requestPrefix+req.ID, req, req.ExpiresAt)
}

// ConsumeAuthorizationRequest atomically fetches and deletes a pending request.
func (r *RedisStore) ConsumeAuthorizationRequest(ctx context.Context, requestID string) (*core.AuthorizationRequest, error) {
	if requestID == "" {
		return nil, ErrNotFound
	}
	var req core.AuthorizationRequest
	if err := r.consume(ctx, requestPrefix+requestID, &req); err != nil {
		return nil, err
	}
	if core.Expired(req.ExpiresAt, r.now()) {
		return nil, ErrNotFound
	}
	return &req, nil
}

// SaveAuthorizationCode stores an authorization code in Redis with TTL.
func (r *RedisStore) SaveAuthorizationCode(ctx context.Context, code *core.AuthorizationCode) error {
	if code == nil {
		return ErrNilAuthorizationCode
	}
	if code.Code == "" {
		return ErrEmptyKey
	}
	return r.save(ctx, authCodePrefix+code.Code, code, code.ExpiresAt)
}

// ConsumeAuthorizationCode atomically fetches and deletes an authorization code.
func (r *RedisStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	var authCode core.AuthorizationCode
	if err := r.consume(ctx, authCodePrefix+code, &authCode); err != nil {
		return nil, err
	}
	// Double-check expiration (Redis TTL should handle this, but being explicit)
	if core.Expired(authCode.ExpiresAt, r.now()) {
		return nil, ErrNotFound
	}
	return &authCode, nil
}

func (r *RedisStore) save(ctx context.Context, key string, value any, expiresAt int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal flow record: %w", err)
	}

	if expiresAt == 0 {
		return errors.New("flow record has no expiry")
	}
	ttl := time.Unix(expiresAt, 0).Sub(r.now())
	if ttl <= 0 {
		return errors.New("flow record is already expired")
	}
	seconds := int64(ttl.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}

	cmd := r.client.B().Set().Key(key).Value(string(data)).Nx().ExSeconds(seconds).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to save flow record to redis: %w", err)
	}

	return nil
}

func (r *RedisStore) consume(ctx context.Context, key string, out any) error {
	cmd := r.client.B().Getdel().Key(key).Build()
	result, err := r.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to consume flow record from redis: %w", err)
	}

	if err := json.Unmarshal([]byte(result), out); err != nil {
		return fmt.Errorf("failed to unmarshal flow record: %w", err)
	}
	return nil
}
