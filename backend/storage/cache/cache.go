package storage

import (
	"context"
	"fmt"
	"time"
)

// CacheInterface defines the set of methods that need to be implemented to
// be used as a cache storage. Get reports a missing key with an error
// matching apperrors.ErrNotFound.
type CacheInterface interface {
	Connect(url string) error
	Disconnect() error
	// Stores value as JSON under key for ttl. A zero ttl never expires.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Decodes the JSON stored under key into dest.
	Get(ctx context.Context, key string, dest interface{}) error
	// Atomically increments the integer under key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Reads the integer under key, 0 when absent.
	Counter(ctx context.Context, key string) (int64, error)
}

// NewCache creates a new CacheInterface with a Redis backend.
// It connects to the provided address, and returns the cache instance or
// an error if the connection failed.
func NewCache(url string) (CacheInterface, error) {
	cache := NewRedisCache()
	err := cache.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return cache, nil
}
