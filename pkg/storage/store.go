// Package storage provides the key-value store abstraction the history cache
// writes through, with Redis and in-memory backends.
//
// The store speaks raw bytes: serialization of day histories is the cache's
// contract, not the store's. Every blocking call takes a context so callers
// can bound store round-trips with timeouts.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by Update when another writer modified the key
// between the read and the conditional write. Callers retry the whole
// read-modify-write cycle.
var ErrConflict = errors.New("storage: concurrent update conflict")

// UpdateFunc transforms the current value of a key into its next value.
// found is false when the key is absent; current is nil in that case.
// Returning an error aborts the update and propagates unchanged.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// Store is the external key-value store consumed by the history cache.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// A missing key is not an error: Get reports it through found=false.
type Store interface {
	// Get returns the value stored under key, or found=false if the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key unconditionally, resetting its expiry to
	// ttl from now. A ttl of zero stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Update performs one optimistic read-modify-write attempt: it reads the
	// current value, applies fn, and writes the result back with the given
	// ttl only if the key was not modified in between. Returns ErrConflict
	// when the conditional write loses the race.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	// Ping verifies connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases backend connections.
	Close() error
}
