package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgood/goodsale-sub002/svc/tenant"
)

func TestResolver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("resolves through store and populates cache", func(t *testing.T) {
		t.Parallel()
		store := tenant.NewMemoryStore()
		require.NoError(t, store.Create(ctx, &tenant.Tenant{Name: "Acme", Subdomain: "acme", Status: tenant.StatusActive}))

		cache := tenant.NewMemoryCache(time.Minute)
		resolver := tenant.NewResolver(store, tenant.WithCache(cache))

		got, err := resolver.Resolve(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Name)

		cached, ok := cache.Get(ctx, "acme")
		require.True(t, ok)
		assert.Equal(t, got.ID, cached.ID)
	})

	t.Run("unknown subdomain", func(t *testing.T) {
		t.Parallel()
		resolver := tenant.NewResolver(tenant.NewMemoryStore())

		_, err := resolver.Resolve(ctx, "ghost")
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})

	t.Run("malformed subdomain", func(t *testing.T) {
		t.Parallel()
		resolver := tenant.NewResolver(tenant.NewMemoryStore())

		_, err := resolver.Resolve(ctx, "Not_A_Subdomain")
		assert.ErrorIs(t, err, tenant.ErrInvalidSubdomain)
	})

	t.Run("suspended tenants still resolve", func(t *testing.T) {
		t.Parallel()
		store := tenant.NewMemoryStore()
		require.NoError(t, store.Create(ctx, &tenant.Tenant{Subdomain: "dormant", Status: tenant.StatusSuspended}))

		resolver := tenant.NewResolver(store)

		got, err := resolver.Resolve(ctx, "dormant")
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusSuspended, got.Status)
	})
}

func TestRedisCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newCache := func(t *testing.T) (*tenant.RedisCache, *miniredis.Miniredis) {
		t.Helper()
		srv := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return tenant.NewRedisCache(client, time.Minute), srv
	}

	t.Run("set then get round-trips", func(t *testing.T) {
		t.Parallel()
		cache, _ := newCache(t)
		want := &tenant.Tenant{Name: "Acme", Subdomain: "acme", Status: tenant.StatusActive}

		require.NoError(t, cache.Set(ctx, "acme", want))

		got, ok := cache.Get(ctx, "acme")
		require.True(t, ok)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Status, got.Status)
	})

	t.Run("miss after delete", func(t *testing.T) {
		t.Parallel()
		cache, _ := newCache(t)
		require.NoError(t, cache.Set(ctx, "acme", &tenant.Tenant{Subdomain: "acme"}))
		require.NoError(t, cache.Delete(ctx, "acme"))

		_, ok := cache.Get(ctx, "acme")
		assert.False(t, ok)
	})

	t.Run("entries expire with the ttl", func(t *testing.T) {
		t.Parallel()
		cache, srv := newCache(t)
		require.NoError(t, cache.Set(ctx, "acme", &tenant.Tenant{Subdomain: "acme"}))

		srv.FastForward(2 * time.Minute)

		_, ok := cache.Get(ctx, "acme")
		assert.False(t, ok)
	})

	t.Run("corrupt entry is dropped", func(t *testing.T) {
		t.Parallel()
		cache, srv := newCache(t)
		require.NoError(t, srv.Set("tenant:subdomain:acme", "{not json"))

		_, ok := cache.Get(ctx, "acme")
		assert.False(t, ok)
	})
}

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cache := tenant.NewMemoryCache(time.Nanosecond)
	require.NoError(t, cache.Set(ctx, "acme", &tenant.Tenant{Subdomain: "acme"}))

	time.Sleep(time.Millisecond)

	_, ok := cache.Get(ctx, "acme")
	assert.False(t, ok)
}
