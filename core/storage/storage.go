// Package storage defines the key/value state store boundary used by the
// session registry, rate limiter, and referral ledger. Backends are
// interchangeable: everything above this package is expressed purely in
// these primitives.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a store outage. It is the only unrecoverable error
// class in the system: callers propagate it instead of degrading, since no
// component can safely guess session state without the store.
var ErrUnavailable = errors.New("storage unavailable")

// Store is the minimal contract required by the dialog engine.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Increment atomically increments the integer value under key,
	// starting from zero when the key is absent, and returns the result.
	Increment(ctx context.Context, key string) (int64, error)
	// ExpireAfter marks key for deletion after ttl. A no-op if the key
	// does not exist.
	ExpireAfter(ctx context.Context, key string, ttl time.Duration) error
	// ScanByPrefix returns all live keys beginning with prefix, sorted.
	ScanByPrefix(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
