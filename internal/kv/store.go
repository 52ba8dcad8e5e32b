// Package kv abstracts the key-value storage used for entitlements and
// conversation history.
//
// Primary backend: Redis (env REDIS_DSN). Fallback: in-process memory
// (development only; state is lost on restart and not shared between
// instances).
package kv

import (
	"context"
	"errors"
	"time"
)

// Store is a JSON-codec key-value store with per-key expiry.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get unmarshals the value at key into dest.
	// Returns found=false (and no error) when the key is absent or expired.
	Get(ctx context.Context, key string, dest any) (found bool, err error)
	// Set marshals val and stores it under key. ttl<=0 means no expiry.
	Set(ctx context.Context, key string, val any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New creates the best available store: Redis when a DSN is given,
// otherwise in-memory. When isProd is true the memory fallback is not
// allowed and an error is returned instead.
func New(redisDSN string, isProd bool) (Store, error) {
	if redisDSN != "" {
		return newRedisStore(redisDSN)
	}
	if isProd {
		return nil, errors.New("production requires REDIS_DSN for the key-value store; in-memory fallback is not allowed")
	}
	return newMemoryStore(), nil
}
