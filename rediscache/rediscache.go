// Package rediscache provides a Redis-backed ingestkit.ResultCache shared by
// every process that points at the same Redis.
//
// Results are stored as JSON under <prefix><fingerprint>. Insertion order is
// kept in the list <prefix>order, trimmed to the capacity, so eviction is
// first-in first-out. Get returns a decoded copy, never a shared instance.
//
// Import the package for its side effect to let ingestkit.New pick it when
// Config.RedisURL is set:
//
//	import _ "github.com/gobeaver/ingestkit/rediscache"
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gobeaver/ingestkit"
)

// DefaultPrefix namespaces every key written by the cache.
const DefaultPrefix = "ingestkit:sanitize:"

func init() {
	ingestkit.RegisterCache("redis", func(cfg *ingestkit.Config) (ingestkit.ResultCache, error) {
		return New(cfg.RedisURL, WithCapacity(cfg.CacheCapacity))
	})
}

// Cache implements ingestkit.ResultCache using Redis
type Cache struct {
	client   *redis.Client
	prefix   string
	capacity int
	ttl      time.Duration
	logger   zerolog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache
type Option func(*Cache)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithCapacity sets the maximum number of results kept
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithTTL expires entries after d. Zero keeps them until evicted.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		c.ttl = d
	}
}

// WithLogger sets the logger that receives Redis errors
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New connects to redisURL and checks the connection
func New(redisURL string, opts ...Option) (*Cache, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(ropts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, opts...), nil
}

// NewWithClient creates a cache from an existing Redis client
func NewWithClient(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client:   client,
		prefix:   DefaultPrefix,
		capacity: ingestkit.DefaultCacheCapacity,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(fingerprint string) string {
	return c.prefix + fingerprint
}

func (c *Cache) orderKey() string {
	return c.prefix + "order"
}

// Get retrieves a decoded copy of a cached result. Redis errors count as a
// miss.
func (c *Cache) Get(ctx context.Context, key string) (*ingestkit.Result, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.misses.Add(1)
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("redis cache get failed")
		return nil, false
	}

	var r ingestkit.Result
	if err := json.Unmarshal(data, &r); err != nil {
		c.misses.Add(1)
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("redis cache entry is corrupt")
		return nil, false
	}
	c.hits.Add(1)
	return &r, true
}

// Set stores a result and evicts the oldest entries beyond the capacity
func (c *Cache) Set(ctx context.Context, key string, r *ingestkit.Result) {
	data, err := json.Marshal(r)
	if err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("marshal cached result")
		return
	}

	var created *redis.BoolCmd
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// SetNX reports whether the key is new, so the order list gets it once
		created = pipe.SetNX(ctx, c.key(key), data, c.ttl)
		pipe.Set(ctx, c.key(key), data, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("redis cache set failed")
		return
	}
	if !created.Val() {
		return
	}

	// A key that expired is new again but may still sit in the order list.
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, c.orderKey(), 0, key)
		pipe.RPush(ctx, c.orderKey(), key)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("redis cache order update failed")
		return
	}
	c.trim(ctx)
}

// trim pops the oldest keys until the order list fits the capacity.
func (c *Cache) trim(ctx context.Context) {
	for {
		n, err := c.client.LLen(ctx, c.orderKey()).Result()
		if err != nil || n <= int64(c.capacity) {
			return
		}
		oldest, err := c.client.LPop(ctx, c.orderKey()).Result()
		if err != nil {
			return
		}
		if err := c.client.Del(ctx, c.key(oldest)).Err(); err != nil {
			c.logger.Warn().Err(err).Str("cache_key", oldest).Msg("redis cache eviction failed")
			continue
		}
		c.evictions.Add(1)
	}
}

// Len returns the number of tracked results
func (c *Cache) Len() int {
	n, err := c.client.LLen(context.Background(), c.orderKey()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Clear removes every result written under the prefix
func (c *Cache) Clear(ctx context.Context) {
	keys, err := c.client.LRange(ctx, c.orderKey(), 0, -1).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("redis cache clear failed")
		return
	}
	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, c.key(k))
	}
	del = append(del, c.orderKey())
	if err := c.client.Del(ctx, del...).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis cache clear failed")
	}
}

// Stats returns the statistics of this process's view of the cache
func (c *Cache) Stats() ingestkit.CacheStatistics {
	hits, misses := c.hits.Load(), c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return ingestkit.CacheStatistics{
		Hits:      hits,
		Misses:    misses,
		Size:      int64(c.Len()),
		Evictions: c.evictions.Load(),
		HitRate:   hitRate,
	}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Ensure Cache implements ResultCache and CacheStats
var (
	_ ingestkit.ResultCache = (*Cache)(nil)
	_ ingestkit.CacheStats  = (*Cache)(nil)
)
