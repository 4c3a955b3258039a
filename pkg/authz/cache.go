package authz

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// DefaultCacheTTL bounds how stale a resolved permission set may be.
const DefaultCacheTTL = 60 * time.Second

// DefaultCacheSize caps the in-memory cache entry count.
const DefaultCacheSize = 16384

// CacheKey builds the composite "userId:scopeType:scopeId" key.
func CacheKey(userID string, scope scopes.Scope) string {
	return userID + ":" + string(scope.Type) + ":" + scope.ID
}

// ResolutionCache stores resolved permission sets keyed by
// "userId:scopeType:scopeId". Lookups never fail: a miss, an expired entry,
// or a backend error all fall through to a full recomputation.
type ResolutionCache interface {
	// Get returns the cached entry for the key, if present and unexpired.
	Get(ctx context.Context, key string) (*EffectivePermissions, bool)

	// Set stores the entry under the key with the cache's TTL.
	Set(ctx context.Context, key string, value *EffectivePermissions)

	// InvalidateUser removes every entry whose key is prefixed by the
	// user's id, covering all scopes the user may be cached under.
	InvalidateUser(ctx context.Context, userID string)

	// InvalidateAll clears everything. Used for catalog-wide changes.
	InvalidateAll(ctx context.Context)
}

// MemoryCache is an in-process ResolutionCache on an expirable LRU. The LRU
// is safe under true parallel access and checks entry expiry on every read.
type MemoryCache struct {
	cache *lru.LRU[string, *EffectivePermissions]
}

// NewMemoryCache creates a memory cache with the given capacity and TTL.
// Zero values fall back to the defaults.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		cache: lru.NewLRU[string, *EffectivePermissions](size, nil, ttl),
	}
}

// Get implements ResolutionCache.
func (c *MemoryCache) Get(ctx context.Context, key string) (*EffectivePermissions, bool) {
	return c.cache.Get(key)
}

// Set implements ResolutionCache.
func (c *MemoryCache) Set(ctx context.Context, key string, value *EffectivePermissions) {
	c.cache.Add(key, value)
}

// InvalidateUser implements ResolutionCache.
func (c *MemoryCache) InvalidateUser(ctx context.Context, userID string) {
	prefix := userID + ":"
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
}

// InvalidateAll implements ResolutionCache.
func (c *MemoryCache) InvalidateAll(ctx context.Context) {
	c.cache.Purge()
}

// redisNamespace isolates engine keys from other users of the same Redis.
const redisNamespace = "gatehouse:resolved:"

// RedisCache is a ResolutionCache shared across service instances. Backend
// errors are swallowed: the caller just recomputes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache with the given TTL. A zero TTL
// falls back to the default.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get implements ResolutionCache.
func (c *RedisCache) Get(ctx context.Context, key string) (*EffectivePermissions, bool) {
	data, err := c.client.Get(ctx, redisNamespace+key).Bytes()
	if err != nil {
		return nil, false
	}

	var ep EffectivePermissions
	if err := json.Unmarshal(data, &ep); err != nil {
		return nil, false
	}

	return &ep, true
}

// Set implements ResolutionCache.
func (c *RedisCache) Set(ctx context.Context, key string, value *EffectivePermissions) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(ctx, redisNamespace+key, data, c.ttl)
}

// InvalidateUser implements ResolutionCache.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) {
	c.deleteByPattern(ctx, redisNamespace+userID+":*")
}

// InvalidateAll implements ResolutionCache.
func (c *RedisCache) InvalidateAll(ctx context.Context) {
	c.deleteByPattern(ctx, redisNamespace+"*")
}

func (c *RedisCache) deleteByPattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}
