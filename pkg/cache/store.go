package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360/ciboard/errors"
)

// Store holds encoded values shared by every request. Implementations are
// safe for concurrent use.
type Store interface {
	// Get returns the value and true, or false when the key is absent or
	// expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// memoryStore adapts a Cache[[]byte] to Store.
type memoryStore struct {
	cache Cache[[]byte]
}

// NewMemoryStore wraps an in-process cache as a Store
func NewMemoryStore(c Cache[[]byte]) Store {
	return &memoryStore{cache: c}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.cache.Get(key)
	return v, ok, nil
}

func (s *memoryStore) Put(_ context.Context, key string, value []byte) error {
	_, err := s.cache.Set(key, value)
	return err
}

func (s *memoryStore) Close() error {
	return s.cache.Close()
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Store failures never fail the lookup; they are logged and load
// is used directly. A nil store disables caching.
func GetOrLoad[T any](ctx context.Context, store Store, logger *slog.Logger, key string, load func(context.Context) (T, error)) (T, error) {
	if store == nil {
		return load(ctx)
	}
	if logger == nil {
		logger = slog.Default()
	}

	data, ok, err := store.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache read failed", "key", key, "error", err)
	}
	if ok {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		logger.Warn("Discarding undecodable cache entry", "key", key)
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		logger.Warn("Cache encode failed", "key", key, "error",
			errors.WrapInvalid(err, "cache", "GetOrLoad", "encode value"))
		return value, nil
	}
	if err := store.Put(ctx, key, encoded); err != nil {
		logger.Warn("Cache write failed", "key", key, "error", err)
	}
	return value, nil
}
