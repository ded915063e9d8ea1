// Package cache keeps upstream lookups that never change for a given key
// (a Koji build, a module build) so repeated dashboard queries do not hit
// the collaborators again.
//
// Two layers are provided:
//   - Cache[V]: a generic, thread-safe in-process cache with TTL expiry and
//     an optional entry bound
//   - Store: an encoded byte store with a context-aware API, backed either by
//     a Cache[[]byte] or by a NATS JetStream key-value bucket shared across
//     replicas
//
// Statistics are always collected; Prometheus export is optional via
// WithMetrics.
package cache

import (
	"time"

	"github.com/c360/ciboard/errors"
)

// Cache represents a generic cache interface.
// The cache is parameterized by value type V for type safety.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found and
	// not expired.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry was created, false if updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed and was deleted.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries in the cache.
	Size() int

	// Keys returns the keys of all live entries.
	Keys() []string

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close stops background cleanup.
	Close() error
}

// EvictCallback is called when an entry leaves the cache without being
// deleted explicitly (expiry, bound, clear).
type EvictCallback[V any] func(key string, value V)

// validateKey validates a cache key for basic requirements.
// Returns a classified error if the key is invalid.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}

// clock returns the current time; replaced in tests.
type clock func() time.Time
