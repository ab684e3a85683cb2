package store

import (
	"fmt"
	"strings"

	"github.com/go-training/authz-server/pkg/core"
)

// StoreType represents the type of flow store backend.
type StoreType string

const (
	// StoreTypeMemory represents in-memory storage.
	StoreTypeMemory StoreType = "memory"
	// StoreTypeRedis represents Redis storage.
	StoreTypeRedis StoreType = "redis"
)

// Config contains configuration for creating a flow store.
type Config struct {
	// Type specifies the store type (memory or redis).
	Type StoreType
	// Redis contains Redis-specific configuration.
	Redis RedisOptions
}

// Factory creates store instances based on configuration.
type Factory struct {
	config Config
}

// NewFactory creates a new store factory with the provided configuration.
func NewFactory(config Config) *Factory {
	return &Factory{
		config: config,
	}
}

// Create creates and returns a new store instance based on the factory configuration.
func (f *Factory) Create() (core.FlowStore, error) {
	switch f.config.Type {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		return NewRedisStoreFromOptions(f.config.Redis)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", f.config.Type)
	}
}

// NewStore is a convenience function equivalent to NewFactory(config).Create().
func NewStore(config Config) (core.FlowStore, error) {
	return NewFactory(config).Create()
}

// NewStoreFromType creates a store from a type string and optional Redis configuration.
func NewStoreFromType(storeType string, redisOpts RedisOptions) (core.FlowStore, error) {
	return NewStore(Config{
		Type:  ParseStoreType(storeType),
		Redis: redisOpts,
	})
}

// ParseStoreType parses a string into a StoreType.
// Returns StoreTypeMemory for invalid inputs.
func ParseStoreType(s string) StoreType {
	switch strings.ToLower(s) {
	case "redis":
		return StoreTypeRedis
	default:
		return StoreTypeMemory
	}
}

// IsValid returns true if the StoreType is valid.
func (t StoreType) IsValid() bool {
	switch t {
	case StoreTypeMemory, StoreTypeRedis:
		return true
	default:
		return false
	}
}
