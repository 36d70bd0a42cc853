package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/puntoylana/offlinecache/core"
)

// RedisStorage provides Redis-backed cache storage, shared between proxy instances.
//
// Layout under the key prefix:
//
//	<prefix>caches        sorted set of cache names scored by creation sequence
//	<prefix>seq           creation sequence counter
//	<prefix>cache:<name>  hash of request key -> JSON encoded entry
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// RedisConfig for creating a Redis storage
type RedisConfig struct {
	Addr     string // Redis address (e.g., "localhost:6379")
	Password string // Redis password (empty for no auth)
	DB       int    // Redis database number
	Prefix   string // Key prefix (default: "offlinecache:")
}

// NewRedisStorage creates a new Redis-backed storage
func NewRedisStorage(config RedisConfig) *RedisStorage {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	prefix := config.Prefix
	if prefix == "" {
		prefix = "offlinecache:"
	}

	return &RedisStorage{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStorage) namesKey() string {
	return s.prefix + "caches"
}

func (s *RedisStorage) seqKey() string {
	return s.prefix + "seq"
}

func (s *RedisStorage) cacheKey(name string) string {
	return s.prefix + "cache:" + name
}

// Open returns the named cache, creating it when missing
func (s *RedisStorage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	exists, err := s.Has(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		seq, err := s.client.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("open cache %s: %w", name, err)
		}
		// NX keeps the original creation order if another instance won the race
		if err := s.client.ZAddNX(ctx, s.namesKey(), redis.Z{Score: float64(seq), Member: name}).Err(); err != nil {
			return nil, fmt.Errorf("open cache %s: %w", name, err)
		}
	}

	return &redisCache{storage: s, name: name}, nil
}

// Has reports whether the named cache exists
func (s *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	err := s.client.ZScore(ctx, s.namesKey(), name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup cache %s: %w", name, err)
	}
	return true, nil
}

// Delete removes the named cache and its entries
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.cacheKey(name))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

// Keys lists cache names in creation order
func (s *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.namesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	return names, nil
}

// Match searches every cache in creation order
func (s *RedisStorage) Match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool, error) {
	if !cacheable(key) {
		return nil, false, nil
	}

	names, err := s.Keys(ctx)
	if err != nil {
		return nil, false, err
	}

	for _, name := range names {
		c := &redisCache{storage: s, name: name}
		resp, ok, err := c.Match(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

// Ping checks if Redis connection is alive
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// clear removes every key under the prefix. Used by tests.
func (s *RedisStorage) clear(ctx context.Context) {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		s.client.Del(ctx, iter.Val())
	}
}

type redisCache struct {
	storage *RedisStorage
	name    string
}

func (c *redisCache) Name() string {
	return c.name
}

func (c *redisCache) Put(ctx context.Context, key core.RequestKey, resp *core.CachedResponse) error {
	if err := checkPut(key, resp); err != nil {
		return err
	}

	exists, err := c.storage.Has(ctx, c.name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrCacheDeleted
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	if err := c.storage.client.HSet(ctx, c.storage.cacheKey(c.name), string(key), data).Err(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) Match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool, error) {
	if !cacheable(key) {
		return nil, false, nil
	}

	val, err := c.storage.client.HGet(ctx, c.storage.cacheKey(c.name), string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("match %s: %w", key, err)
	}

	var resp core.CachedResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, false, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &resp, true, nil
}

func (c *redisCache) Delete(ctx context.Context, key core.RequestKey) (bool, error) {
	n, err := c.storage.client.HDel(ctx, c.storage.cacheKey(c.name), string(key)).Result()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *redisCache) Keys(ctx context.Context) ([]core.RequestKey, error) {
	fields, err := c.storage.client.HKeys(ctx, c.storage.cacheKey(c.name)).Result()
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", c.name, err)
	}
	keys := make([]core.RequestKey, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, core.RequestKey(f))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}
