package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryKey is the cache key holding the computed summary.
const SummaryKey = "leadq:summary"

// DefaultTTL applies when a cache is built without a TTL.
const DefaultTTL = 10 * time.Minute

// Cache stores the last computed summary.
type Cache interface {
	// Get returns the cached summary; ok is false on a miss.
	Get(ctx context.Context) (s *Summary, ok bool, err error)
	Set(ctx context.Context, s *Summary) error
	// Invalidate drops the cached summary. Called after every upload.
	Invalidate(ctx context.Context) error
	Close() error
}

// NopCache never holds anything.
type NopCache struct{}

func (NopCache) Get(context.Context) (*Summary, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, *Summary) error         { return nil }
func (NopCache) Invalidate(context.Context) error            { return nil }
func (NopCache) Close() error                                { return nil }

// RedisCache keeps the summary in Redis as JSON.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, key: SummaryKey, ttl: ttl}
}

// Get returns the cached summary.
func (c *RedisCache) Get(ctx context.Context) (*Summary, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &s, true, nil
}

// Set stores s with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, s *Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// Invalidate deletes the cached summary.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("invalidate summary: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
