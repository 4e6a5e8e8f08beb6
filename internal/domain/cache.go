package domain

import (
	"context"
	"time"
)

// Cache is a tenant-scoped byte cache: local LRU, Redis, or both.
type Cache interface {
	// Get returns nil, nil when the key is absent.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, tenantID string, key string) error

	// DeletePrefix removes every key of the tenant starting with prefix.
	DeletePrefix(ctx context.Context, tenantID string, prefix string) error

	Ping(ctx context.Context) error

	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase checks the local LRU before Redis.
	EnableTwoPhase bool
}
