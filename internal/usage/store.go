// Package usage records which order identifiers have already been redeemed,
// preventing re-redemption and cross-user sharing of a single purchase.
//
// Primary backend: Redis SETNX with TTL (env REDIS_DSN).
// Fallback: Postgres INSERT ... ON CONFLICT (env DATABASE_URL).
// If neither is available, an in-memory store is used (development only).
package usage

import (
	"context"
	"errors"
	"time"
)

// Claim is the result of attempting to claim an order id for a user.
type Claim struct {
	// Duplicate is true when the order id was already claimed.
	Duplicate bool
	// Owner is the user id holding the claim. On a fresh claim it equals
	// the claiming user; on a duplicate it is the original redeemer
	// (empty if the backend did not record one).
	Owner string
}

// Store claims order identifiers exactly once.
type Store interface {
	// Claim atomically marks orderID as used by userID.
	// The first claim wins; later claims report Duplicate with the
	// original owner.
	Claim(ctx context.Context, orderID, userID string) (Claim, error)
}

// NewStore creates the best available usage store:
// Redis > Postgres > in-memory (dev fallback).
// When isProd is true, the in-memory fallback is not allowed and the
// function returns nil with an error.
func NewStore(redisDSN, databaseURL string, ttl time.Duration, isProd bool) (Store, error) {
	if redisDSN != "" {
		return newRedisStore(redisDSN, ttl), nil
	}
	if databaseURL != "" {
		s, err := newPostgresStore(databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if isProd {
		return nil, errors.New("production requires REDIS_DSN or DATABASE_URL for usage records; in-memory store is not allowed")
	}
	return newMemoryStore(), nil
}
