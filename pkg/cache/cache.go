package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a generic key-value cache with TTL support.
//
// TTL semantics for Set:
//   - Positive duration: item expires after this duration
//   - Zero: use the cache's configured default TTL
//   - Negative: item never expires
type Cache[V any] interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) (V, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// Has checks whether a key exists and has not expired.
	Has(ctx context.Context, key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// StaleCache is a Cache that can hand out expired values.
type StaleCache[V any] interface {
	Cache[V]

	// GetStale returns a value that may have expired. fresh is false when
	// the value is past its TTL.
	GetStale(ctx context.Context, key string) (value V, fresh bool, err error)
}

// Marshaler serializes cache values for byte-oriented backends such as Redis.
type Marshaler[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

type jsonMarshaler[V any] struct{}

func (jsonMarshaler[V]) Marshal(v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrMarshal, err)
	}
	return data, nil
}

func (jsonMarshaler[V]) Unmarshal(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.Join(ErrUnmarshal, err)
	}
	return v, nil
}

var sfGroup singleflight.Group

type loadResult[V any] struct {
	val V
	ttl time.Duration
}

// LoadFunc computes a value on a cache miss and returns the TTL to store it with.
type LoadFunc[V any] func(ctx context.Context) (V, time.Duration, error)

// GetOrSet returns the cached value for key or calls fn to compute it.
// Concurrent misses for the same key share one call to fn.
// If fn fails nothing is cached and the error is returned.
func GetOrSet[V any](ctx context.Context, c Cache[V], key string, fn LoadFunc[V]) (V, error) {
	if v, err := c.Get(ctx, key); err == nil {
		return v, nil
	}

	r, err := load(ctx, key, fn)
	if err != nil {
		var zero V
		return zero, err
	}

	_ = c.Set(ctx, key, r.val, r.ttl)
	return r.val, nil
}

// RefreshResult describes how GetOrRefresh produced its value.
type RefreshResult struct {
	// Stale is true when the returned value expired and the refresh failed.
	Stale bool
	// RefreshErr is the error returned by the load function, if it ran and failed.
	RefreshErr error
}

// GetOrRefresh returns the fresh cached value for key, or refreshes it with fn.
// When the refresh fails and an expired value is still retained, the expired
// value is returned with Stale set and no error. Only when there is nothing
// to fall back on is the refresh error returned.
func GetOrRefresh[V any](ctx context.Context, c StaleCache[V], key string, fn LoadFunc[V]) (V, RefreshResult, error) {
	cached, fresh, cacheErr := c.GetStale(ctx, key)
	if cacheErr == nil && fresh {
		return cached, RefreshResult{}, nil
	}

	r, err := load(ctx, key, fn)
	if err != nil {
		if cacheErr == nil {
			return cached, RefreshResult{Stale: true, RefreshErr: err}, nil
		}
		var zero V
		return zero, RefreshResult{RefreshErr: err}, err
	}

	_ = c.Set(ctx, key, r.val, r.ttl)
	return r.val, RefreshResult{}, nil
}

func load[V any](ctx context.Context, key string, fn LoadFunc[V]) (loadResult[V], error) {
	v, err, _ := sfGroup.Do(key, func() (any, error) {
		val, ttl, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return loadResult[V]{val: val, ttl: ttl}, nil
	})
	if err != nil {
		return loadResult[V]{}, err
	}
	return v.(loadResult[V]), nil
}
