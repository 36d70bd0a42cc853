package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"

	"github.com/puntoylana/offlinecache/core"
)

// MemoryStorage provides thread-safe in-memory cache storage.
// Contents are lost on restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]*MemoryCache
	order  []string
}

// Ensure MemoryStorage implements Storage interface
var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		caches: make(map[string]*MemoryCache),
	}
}

// Open returns the named cache, creating it when missing
func (s *MemoryStorage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	s.mu.RLock()
	c, ok := s.caches[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check: another goroutine might have created it
	if c, ok := s.caches[name]; ok {
		return c, nil
	}

	c = &MemoryCache{
		name:    name,
		entries: gocache.New(gocache.NoExpiration, 0),
	}
	s.caches[name] = c
	s.order = append(s.order, name)
	return c, nil
}

// Has reports whether the named cache exists
func (s *MemoryStorage) Has(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.caches[name]
	return ok, nil
}

// Delete removes the named cache
func (s *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[name]
	if !ok {
		return false, nil
	}

	c.deleted.Store(true)
	c.entries.Flush()
	delete(s.caches, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Keys lists cache names in creation order
func (s *MemoryStorage) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...), nil
}

// Match searches every cache in creation order
func (s *MemoryStorage) Match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool, error) {
	s.mu.RLock()
	caches := make([]*MemoryCache, 0, len(s.order))
	for _, name := range s.order {
		caches = append(caches, s.caches[name])
	}
	s.mu.RUnlock()

	for _, c := range caches {
		if resp, ok, _ := c.Match(ctx, key); ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

// MemoryCache is one named cache inside a MemoryStorage
type MemoryCache struct {
	name    string
	entries *gocache.Cache // map[core.RequestKey]*core.CachedResponse
	deleted atomic.Bool
}

// Ensure MemoryCache implements Cache interface
var _ Cache = (*MemoryCache)(nil)

// Name returns the cache name
func (c *MemoryCache) Name() string {
	return c.name
}

// Put stores a copy of resp under key
func (c *MemoryCache) Put(ctx context.Context, key core.RequestKey, resp *core.CachedResponse) error {
	if err := checkPut(key, resp); err != nil {
		return err
	}
	if c.deleted.Load() {
		return ErrCacheDeleted
	}
	c.entries.Set(string(key), clone(resp), gocache.NoExpiration)
	return nil
}

// Match returns a copy of the entry stored under key
func (c *MemoryCache) Match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool, error) {
	if !cacheable(key) {
		return nil, false, nil
	}
	val, ok := c.entries.Get(string(key))
	if !ok {
		return nil, false, nil
	}
	return clone(val.(*core.CachedResponse)), true, nil
}

// Delete removes the entry stored under key
func (c *MemoryCache) Delete(ctx context.Context, key core.RequestKey) (bool, error) {
	if _, ok := c.entries.Get(string(key)); !ok {
		return false, nil
	}
	c.entries.Delete(string(key))
	return true, nil
}

// Keys lists all request keys, sorted
func (c *MemoryCache) Keys(ctx context.Context) ([]core.RequestKey, error) {
	items := c.entries.Items()
	keys := make([]core.RequestKey, 0, len(items))
	for k := range items {
		keys = append(keys, core.RequestKey(k))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func clone(resp *core.CachedResponse) *core.CachedResponse {
	cp := *resp
	cp.Header = resp.Header.Clone()
	cp.Body = append([]byte(nil), resp.Body...)
	return &cp
}
