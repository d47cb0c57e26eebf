// Package session provides the durable key/value store that holds the
// authentication token and user record across restarts.
package session

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for storage operations.
var (
	// ErrKeyNotFound is returned when a key has no stored value.
	ErrKeyNotFound = errors.New("key not found")
	// ErrStorageClosed is returned when operating on a closed storage backend.
	ErrStorageClosed = errors.New("storage backend is closed")
)

// Store abstracts durable key/value persistence.
// Every mutation is written through before the call returns.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// NewStore builds the backend selected by cfg.Store.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Store {
	case "", StoreFile:
		return NewFileBackend(cfg.BaseDir)
	case StoreRedis:
		return NewRedisBackend(cfg.Redis)
	case StoreMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown session store: %q", cfg.Store)
	}
}
