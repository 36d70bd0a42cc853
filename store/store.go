package store

import (
	"context"
	"errors"
	"net/http"

	"github.com/puntoylana/offlinecache/core"
)

var (
	// ErrUnsupportedMethod is returned when putting a non-GET entry
	ErrUnsupportedMethod = errors.New("only GET requests can be cached")

	// ErrInvalidName is returned for an empty cache name
	ErrInvalidName = errors.New("cache name cannot be empty")

	// ErrCacheDeleted is returned when using a cache handle after its storage entry was deleted
	ErrCacheDeleted = errors.New("cache has been deleted")
)

// Storage holds named caches, like the browser's CacheStorage
type Storage interface {
	// Open returns the cache called name, creating it when missing.
	Open(ctx context.Context, name string) (Cache, error)

	// Has reports whether a cache called name exists.
	Has(ctx context.Context, name string) (bool, error)

	// Delete removes the cache and all its entries.
	// It reports whether a cache was actually removed.
	Delete(ctx context.Context, name string) (bool, error)

	// Keys lists cache names in creation order.
	Keys(ctx context.Context) ([]string, error)

	// Match looks key up in every cache, in creation order.
	Match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool, error)
}

// Cache is a single named request→response store
type Cache interface {
	// Name returns the cache name.
	Name() string

	// Put stores resp under key, replacing any earlier entry.
	Put(ctx context.Context, key core.RequestKey, resp *core.CachedResponse) error

	// Match returns the entry for key.
	Match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool, error)

	// Delete removes the entry for key.
	Delete(ctx context.Context, key core.RequestKey) (bool, error)

	// Keys lists all request keys in the cache.
	Keys(ctx context.Context) ([]core.RequestKey, error)
}

func checkPut(key core.RequestKey, resp *core.CachedResponse) error {
	if key.Method() != http.MethodGet {
		return ErrUnsupportedMethod
	}
	if resp == nil {
		return errors.New("cannot cache a nil response")
	}
	return nil
}

// cacheable reports whether key can ever be found in a cache.
func cacheable(key core.RequestKey) bool {
	return key.Method() == http.MethodGet
}
