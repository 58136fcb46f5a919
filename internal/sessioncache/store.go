// Package sessioncache holds short-lived correlation state for federated
// logins: the CSRF token handed to the identity provider as "state" mapped to
// the nonce bound into the authorization request.
//
// Entries are never returned after their TTL, even if the background sweep
// has not removed them yet. Take consumes an entry so that a replayed
// callback cannot find it again.
package sessioncache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a store after Close.
	ErrClosed = errors.New("session cache closed")

	// ErrInvalidTTL is returned by Put for non-positive TTLs.
	ErrInvalidTTL = errors.New("ttl must be positive")
)

// Store is a TTL-bounded string map.
type Store interface {
	// Put stores value under key. Overwriting replaces both value and expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value without consuming it.
	Get(ctx context.Context, key string) (string, bool, error)
	// Take returns the value and removes the entry. At most one Take per
	// Put observes the value.
	Take(ctx context.Context, key string) (string, bool, error)
	// Health reports whether the backend is usable.
	Health(ctx context.Context) error
	// Close releases background work and connections. It is safe to call
	// more than once.
	Close() error
}
