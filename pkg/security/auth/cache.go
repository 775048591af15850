package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// KeyCache stores verification payloads by key. Entries never expire; they
// are removed only by Invalidate.
type KeyCache interface {
	Get(ctx context.Context, key string) (map[string]any, bool, error)
	Set(ctx context.Context, key string, payload map[string]any) error
	Invalidate(ctx context.Context, key string) error
}

// MemoryKeyCache is a process-local KeyCache.
type MemoryKeyCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]any
}

// NewMemoryKeyCache creates an empty in-memory cache.
func NewMemoryKeyCache() *MemoryKeyCache {
	return &MemoryKeyCache{entries: make(map[string]map[string]any)}
}

func (c *MemoryKeyCache) Get(_ context.Context, key string) (map[string]any, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.entries[key]
	return payload, ok, nil
}

func (c *MemoryKeyCache) Set(_ context.Context, key string, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = payload
	return nil
}

func (c *MemoryKeyCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Len returns the number of cached keys.
func (c *MemoryKeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// DefaultRedisPrefix namespaces key cache entries in Redis.
const DefaultRedisPrefix = "kate:key:"

// RedisKeyCache shares verification payloads between gateway instances.
type RedisKeyCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisKeyCache wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisKeyCache(client redis.UniversalClient, prefix string) *RedisKeyCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisKeyCache{client: client, prefix: prefix}
}

func (c *RedisKeyCache) Get(ctx context.Context, key string) (map[string]any, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("decode cached payload: %w", err)
	}
	return payload, true, nil
}

func (c *RedisKeyCache) Set(ctx context.Context, key string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisKeyCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisKeyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisKeyCache) Close() error {
	return c.client.Close()
}
