// Package cache stores query results keyed by request, so repeated
// requests for the same ranking skip the engine.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arkilian/worlddb/internal/observability"
)

// ResultCache stores JSON-encodable results.
type ResultCache interface {
	// Get decodes the cached value for key into dst and reports whether
	// it was present.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	// Set stores v under key.
	Set(ctx context.Context, key string, v interface{}) error
	// Generation returns the shared dataset generation. Keys built from an
	// older generation are never read again.
	Generation(ctx context.Context) (uint64, error)
	// Bump advances the generation after a dataset change.
	Bump(ctx context.Context) (uint64, error)
	Close() error
}

// Noop is the cache used when caching is disabled. It never hits.
type Noop struct{}

func (Noop) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, interface{}) error         { return nil }
func (Noop) Generation(context.Context) (uint64, error)             { return 0, nil }
func (Noop) Bump(context.Context) (uint64, error)                   { return 0, nil }
func (Noop) Close() error                                           { return nil }

// Config configures the redis cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key.
	Prefix string
	// TTL is the lifetime of an entry. Zero keeps entries until evicted.
	TTL time.Duration
}

// RedisCache implements ResultCache on redis.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to redis and checks the connection.
func NewRedis(ctx context.Context, cfg Config) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(rdb, cfg.Prefix, cfg.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Get decodes the cached value for key into dst.
func (c *RedisCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.CacheLookups.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		observability.CacheLookups.WithLabelValues("error").Inc()
		return false, fmt.Errorf("cache: redis get: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		observability.CacheLookups.WithLabelValues("error").Inc()
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	observability.CacheLookups.WithLabelValues("hit").Inc()
	return true, nil
}

// Set stores v under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// generationKey holds the dataset generation, shared by every process
// using the same redis and prefix.
const generationKey = "generation"

// Generation reads the shared generation. A missing counter is 0.
func (c *RedisCache) Generation(ctx context.Context) (uint64, error) {
	gen, err := c.rdb.Get(ctx, c.prefix+generationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: read generation: %w", err)
	}
	return gen, nil
}

// Bump increments the shared generation. The counter has no TTL.
func (c *RedisCache) Bump(ctx context.Context) (uint64, error) {
	gen, err := c.rdb.Incr(ctx, c.prefix+generationKey).Uint64()
	if err != nil {
		return 0, fmt.Errorf("cache: bump generation: %w", err)
	}
	return gen, nil
}

// Close closes the redis client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
