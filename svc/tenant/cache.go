package tenant

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved tenants keyed by subdomain.
type Cache interface {
	Get(ctx context.Context, key string) (*Tenant, bool)
	Set(ctx context.Context, key string, t *Tenant) error
	Delete(ctx context.Context, key string) error
}

// NoOpCache disables caching.
type NoOpCache struct{}

func (NoOpCache) Get(ctx context.Context, key string) (*Tenant, bool) { return nil, false }
func (NoOpCache) Set(ctx context.Context, key string, t *Tenant) error {
	return nil
}
func (NoOpCache) Delete(ctx context.Context, key string) error { return nil }

type memoryCacheEntry struct {
	tenant    Tenant
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache. Single-instance deployments and
// tests use it; multi-instance deployments should prefer RedisCache so
// rename invalidation reaches every node.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Tenant, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	t := entry.tenant
	return &t, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, t *Tenant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{tenant: *t, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

const redisCacheKeyPrefix = "tenant:subdomain:"

// RedisCache backs the resolver cache with Redis so all platform instances
// share lookups and invalidations.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("tenant: redis client cannot be nil")
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Tenant, bool) {
	raw, err := c.client.Get(ctx, redisCacheKeyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	var t Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		// Corrupt entry, drop it so the next lookup repopulates.
		_ = c.client.Del(ctx, redisCacheKeyPrefix+key).Err()
		return nil, false
	}
	return &t, true
}

func (c *RedisCache) Set(ctx context.Context, key string, t *Tenant) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisCacheKeyPrefix+key, raw, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, redisCacheKeyPrefix+key).Err()
}
