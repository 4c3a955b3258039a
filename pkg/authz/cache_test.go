package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

func cachedResult(userID string, scope scopes.Scope, perms ...string) *EffectivePermissions {
	return &EffectivePermissions{
		UserID:      userID,
		ScopeType:   scope.Type,
		ScopeID:     scope.ID,
		Permissions: perms,
		Roles:       []RoleSummary{},
	}
}

func TestCacheKey(t *testing.T) {
	key := CacheKey("u1", scopes.Scope{Type: scopes.TypeTeam, ID: "t1"})
	assert.Equal(t, "u1:TEAM:t1", key)
}

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache(0, 0)
	ctx := context.Background()

	key := CacheKey("u1", teamScope)
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Set(ctx, key, cachedResult("u1", teamScope, "transactions:read"))

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []string{"transactions:read"}, got.Permissions)
}

func TestMemoryCache_TTL(t *testing.T) {
	cache := NewMemoryCache(16, 30*time.Millisecond)
	ctx := context.Background()

	key := CacheKey("u1", teamScope)
	cache.Set(ctx, key, cachedResult("u1", teamScope))

	_, ok := cache.Get(ctx, key)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestMemoryCache_InvalidateUser(t *testing.T) {
	cache := NewMemoryCache(16, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, CacheKey("u1", teamScope), cachedResult("u1", teamScope))
	cache.Set(ctx, CacheKey("u1", companyScope), cachedResult("u1", companyScope))
	// "u10" shares a string prefix with "u1" but is a different user.
	cache.Set(ctx, CacheKey("u10", teamScope), cachedResult("u10", teamScope))

	cache.InvalidateUser(ctx, "u1")

	_, ok := cache.Get(ctx, CacheKey("u1", teamScope))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, CacheKey("u1", companyScope))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, CacheKey("u10", teamScope))
	assert.True(t, ok)
}

func TestMemoryCache_InvalidateAll(t *testing.T) {
	cache := NewMemoryCache(16, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, CacheKey("u1", teamScope), cachedResult("u1", teamScope))
	cache.Set(ctx, CacheKey("u2", teamScope), cachedResult("u2", teamScope))

	cache.InvalidateAll(ctx)

	_, ok := cache.Get(ctx, CacheKey("u1", teamScope))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, CacheKey("u2", teamScope))
	assert.False(t, ok)
}

func newTestRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, ttl), mr
}

func TestRedisCache_GetSet(t *testing.T) {
	cache, _ := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	key := CacheKey("u1", teamScope)
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Set(ctx, key, cachedResult("u1", teamScope, "transactions:read"))

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, []string{"transactions:read"}, got.Permissions)
}

func TestRedisCache_TTL(t *testing.T) {
	cache, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	key := CacheKey("u1", teamScope)
	cache.Set(ctx, key, cachedResult("u1", teamScope))

	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisCache_InvalidateUser(t *testing.T) {
	cache, _ := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, CacheKey("u1", teamScope), cachedResult("u1", teamScope))
	cache.Set(ctx, CacheKey("u1", companyScope), cachedResult("u1", companyScope))
	cache.Set(ctx, CacheKey("u2", teamScope), cachedResult("u2", teamScope))

	cache.InvalidateUser(ctx, "u1")

	_, ok := cache.Get(ctx, CacheKey("u1", teamScope))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, CacheKey("u1", companyScope))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, CacheKey("u2", teamScope))
	assert.True(t, ok)
}

func TestRedisCache_InvalidateAll(t *testing.T) {
	cache, _ := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, CacheKey("u1", teamScope), cachedResult("u1", teamScope))
	cache.Set(ctx, CacheKey("u2", companyScope), cachedResult("u2", companyScope))

	cache.InvalidateAll(ctx)

	_, ok := cache.Get(ctx, CacheKey("u1", teamScope))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, CacheKey("u2", companyScope))
	assert.False(t, ok)
}

func TestRedisCache_BackendErrorFallsThrough(t *testing.T) {
	cache, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	mr.Close()

	_, ok := cache.Get(ctx, CacheKey("u1", teamScope))
	assert.False(t, ok)

	// Set on a dead backend is a silent no-op.
	cache.Set(ctx, CacheKey("u1", teamScope), cachedResult("u1", teamScope))
}
