package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puntoylana/offlinecache/core"
)

func key(t *testing.T, method, raw string) core.RequestKey {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return core.KeyFor(method, u)
}

func entry(body string) *core.CachedResponse {
	return &core.CachedResponse{
		URL:        "https://puntoylana.com/",
		Status:     http.StatusOK,
		StatusText: "OK",
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(body),
		StoredAt:   time.Unix(1700000000, 0),
	}
}

// runStorageSuite checks the behavior every Storage backend must share.
func runStorageSuite(t *testing.T, newStorage func(t *testing.T) Storage) {
	ctx := context.Background()

	t.Run("open is idempotent and ordered", func(t *testing.T) {
		s := newStorage(t)

		_, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)
		_, err = s.Open(ctx, "puntoylana-v2")
		require.NoError(t, err)
		_, err = s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)

		names, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"puntoylana-v1", "puntoylana-v2"}, names)

		has, err := s.Has(ctx, "puntoylana-v2")
		require.NoError(t, err)
		assert.True(t, has)

		has, err = s.Has(ctx, "puntoylana-v3")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Open(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("put then match round trip", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)

		k := key(t, http.MethodGet, "https://puntoylana.com/catalogo")
		require.NoError(t, c.Put(ctx, k, entry("catalogo")))

		got, ok, err := c.Match(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "catalogo", string(got.Body))
		assert.Equal(t, http.StatusOK, got.Status)
		assert.Equal(t, "OK", got.StatusText)
		assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
		assert.True(t, got.StoredAt.Equal(time.Unix(1700000000, 0)))

		got, ok, err = s.Match(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "catalogo", string(got.Body))
	})

	t.Run("last write wins", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)

		k := key(t, http.MethodGet, "https://puntoylana.com/")
		require.NoError(t, c.Put(ctx, k, entry("old")))
		require.NoError(t, c.Put(ctx, k, entry("new")))

		got, ok, err := c.Match(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "new", string(got.Body))

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []core.RequestKey{k}, keys)
	})

	t.Run("non GET entries are rejected and never matched", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)

		k := key(t, http.MethodPost, "https://puntoylana.com/contacto")
		assert.ErrorIs(t, c.Put(ctx, k, entry("x")), ErrUnsupportedMethod)

		_, ok, err := s.Match(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("storage match uses creation order", func(t *testing.T) {
		s := newStorage(t)
		v1, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)
		v2, err := s.Open(ctx, "puntoylana-v2")
		require.NoError(t, err)

		k := key(t, http.MethodGet, "https://puntoylana.com/")
		require.NoError(t, v2.Put(ctx, k, entry("from v2")))
		require.NoError(t, v1.Put(ctx, k, entry("from v1")))

		got, ok, err := s.Match(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "from v1", string(got.Body))
	})

	t.Run("delete cache removes entries", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)

		k := key(t, http.MethodGet, "https://puntoylana.com/")
		require.NoError(t, c.Put(ctx, k, entry("x")))

		removed, err := s.Delete(ctx, "puntoylana-v1")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Delete(ctx, "puntoylana-v1")
		require.NoError(t, err)
		assert.False(t, removed, "second delete should report nothing removed")

		names, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)

		_, ok, err := s.Match(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok)

		// Reopening yields an empty cache
		c, err = s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)
		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("put on deleted cache fails", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)
		_, err = s.Delete(ctx, "puntoylana-v1")
		require.NoError(t, err)

		err = c.Put(ctx, key(t, http.MethodGet, "https://puntoylana.com/"), entry("x"))
		assert.ErrorIs(t, err, ErrCacheDeleted)
	})

	t.Run("delete entry", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)

		k := key(t, http.MethodGet, "https://puntoylana.com/")
		require.NoError(t, c.Put(ctx, k, entry("x")))

		removed, err := c.Delete(ctx, k)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = c.Delete(ctx, k)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("concurrent puts", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "puntoylana-v1")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				k := key(t, http.MethodGet, fmt.Sprintf("https://puntoylana.com/p/%d", i%5))
				assert.NoError(t, c.Put(ctx, k, entry("same")))
			}(i)
		}
		wg.Wait()

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 5)
	})
}

func TestMemoryStorage(t *testing.T) {
	runStorageSuite(t, func(t *testing.T) Storage {
		return NewMemoryStorage()
	})
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	c, err := s.Open(ctx, "puntoylana-v1")
	require.NoError(t, err)

	k := key(t, http.MethodGet, "https://puntoylana.com/")
	original := entry("hola")
	require.NoError(t, c.Put(ctx, k, original))

	// Mutating the caller's value or a returned value must not leak into the store.
	original.Body[0] = 'X'
	got, _, err := c.Match(ctx, k)
	require.NoError(t, err)
	got.Header.Set("Content-Type", "text/plain")

	again, _, err := c.Match(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "hola", string(again.Body))
	assert.Equal(t, "text/html", again.Header.Get("Content-Type"))
}
