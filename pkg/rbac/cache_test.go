package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()
	seedEntities(t, engine)

	require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))

	// First check resolves and memoizes.
	_, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
	require.NoError(t, err)
	stats := engine.CacheStats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.GreaterOrEqual(t, stats.Misses, int64(1))

	// Second check serves from cache.
	_, err = engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
	require.NoError(t, err)
	stats = engine.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Entries)
	assert.Greater(t, stats.HitRate, 0.0)
}

func TestCacheInvalidationOnMutation(t *testing.T) {
	ctx := context.Background()

	warm := func(t *testing.T, engine *Engine, userID int64) {
		t.Helper()
		_, err := engine.HasPermission(ctx, userID, RefBySlug("view-posts"))
		require.NoError(t, err)
	}

	t.Run("direct grant invalidates", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)
		warm(t, engine, 1)

		require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))
		has, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("direct revoke invalidates", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)
		require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))
		warm(t, engine, 1)

		require.NoError(t, engine.RevokePermissions(ctx, 1, RefBySlug("view-posts")))
		has, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("role assignment invalidates", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)
		require.NoError(t, engine.GrantRolePermissions(ctx, RefBySlug("editor"), RefBySlug("view-posts")))
		warm(t, engine, 1)

		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor")))
		has, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("role permission change invalidates every holder", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)
		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor")))
		require.NoError(t, engine.AssignRoles(ctx, 2, RefBySlug("editor")))
		warm(t, engine, 1)
		warm(t, engine, 2)

		require.NoError(t, engine.GrantRolePermissions(ctx, RefBySlug("editor"), RefBySlug("view-posts")))

		for _, userID := range []int64{1, 2} {
			has, err := engine.HasPermission(ctx, userID, RefBySlug("view-posts"))
			require.NoError(t, err)
			assert.True(t, has, "user %d", userID)
		}
	})

	t.Run("unaffected principals keep their cached set", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)
		require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))
		require.NoError(t, engine.GrantPermissions(ctx, 2, RefBySlug("view-posts")))
		warm(t, engine, 1)
		warm(t, engine, 2)
		before := engine.CacheStats().Invalidations

		require.NoError(t, engine.RevokePermissions(ctx, 1, RefBySlug("view-posts")))

		assert.Equal(t, before+1, engine.CacheStats().Invalidations)
		has, err := engine.HasPermission(ctx, 2, RefBySlug("view-posts"))
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("no-op mutation does not invalidate", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)
		require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))
		warm(t, engine, 1)
		before := engine.CacheStats().Invalidations

		// Granting an already-present permission changes nothing.
		require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))
		assert.Equal(t, before, engine.CacheStats().Invalidations)
	})
}

func TestCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(WithCacheTTL(20 * time.Millisecond))
	seedEntities(t, engine)
	require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))

	_, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
	require.NoError(t, err)
	require.Equal(t, 1, engine.CacheStats().Entries)

	time.Sleep(60 * time.Millisecond)

	// The expired entry no longer serves hits; the check recomputes.
	hitsBefore := engine.CacheStats().Hits
	has, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, hitsBefore, engine.CacheStats().Hits)
}

func TestCacheDisabled(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(WithCacheDisabled())
	seedEntities(t, engine)
	require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))

	for i := 0; i < 3; i++ {
		has, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
		require.NoError(t, err)
		assert.True(t, has)
	}

	stats := engine.CacheStats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, 0, stats.Entries)
}

func TestCacheSizeBound(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(WithCacheSize(2))
	seedEntities(t, engine)

	for userID := int64(1); userID <= 5; userID++ {
		_, err := engine.HasPermission(ctx, userID, RefBySlug("view-posts"))
		require.NoError(t, err)
	}

	stats := engine.CacheStats()
	assert.LessOrEqual(t, stats.Entries, 2)
	assert.Greater(t, stats.Evictions, int64(0))
}

func TestCacheGenerationStampsBounded(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(WithCacheSize(4))
	seedEntities(t, engine)

	// Mutate far more distinct principals than the cache holds. Each
	// grant/revoke pair invalidates the principal and stamps its generation.
	for userID := int64(1); userID <= 200; userID++ {
		require.NoError(t, engine.GrantPermissions(ctx, userID, RefBySlug("view-posts")))
		require.NoError(t, engine.RevokePermissions(ctx, userID, RefBySlug("view-posts")))
	}

	// Stamps for principals no longer cached are swept, so the map stays
	// bounded by the cache size, not by every principal ever mutated.
	assert.LessOrEqual(t, len(engine.cache.gen), 2*4+1)

	// Invalidation still takes effect after sweeping.
	require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))
	has, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
	require.NoError(t, err)
	assert.True(t, has)
}
