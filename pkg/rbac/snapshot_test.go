package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := NewEngine()
	seedEntities(t, source)
	require.NoError(t, source.GrantRolePermissions(ctx, RefBySlug("editor"),
		RefBySlug("view-posts"), RefBySlug("edit-posts")))
	require.NoError(t, source.AssignRoles(ctx, 1, RefBySlug("editor")))
	require.NoError(t, source.GrantPermissions(ctx, 2, RefBySlug("delete-posts")))

	snap := source.Snapshot(ctx)

	target := NewEngine()
	require.NoError(t, target.Restore(ctx, snap))

	// Entities keep their identifiers across the round trip.
	srcEditor, err := source.FindRoleBySlug(ctx, "editor")
	require.NoError(t, err)
	dstEditor, err := target.FindRoleBySlug(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, srcEditor.ID, dstEditor.ID)

	// Grants survive intact.
	assert.Equal(t, []string{"edit-posts", "view-posts"}, permSlugs(target.PermissionsOf(ctx, 1)))

	has, err := target.HasPermission(ctx, 2, RefBySlug("delete-posts"))
	require.NoError(t, err)
	assert.True(t, has)

	// New entities after a restore never collide with restored ids.
	created, err := target.CreateRole(ctx, "Fresh", "fresh", "")
	require.NoError(t, err)
	for _, r := range target.ListRoles(ctx) {
		if r.Slug != "fresh" {
			assert.NotEqual(t, created.ID, r.ID)
		}
	}
}

func TestSnapshotOfEmptyEngine(t *testing.T) {
	ctx := context.Background()
	snap := NewEngine().Snapshot(ctx)

	target := NewEngine()
	seedEntities(t, target)
	require.NoError(t, target.Restore(ctx, snap))

	assert.Empty(t, target.ListRoles(ctx))
	assert.Empty(t, target.ListPermissions(ctx))
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	ctx := context.Background()

	base := func(t *testing.T) *Engine {
		t.Helper()
		engine := NewEngine()
		seedEntities(t, engine)
		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor")))
		return engine
	}

	t.Run("duplicate role slug", func(t *testing.T) {
		engine := base(t)
		err := engine.Restore(ctx, &Snapshot{
			Roles: []Role{
				{ID: 1, Name: "A", Slug: "dup"},
				{ID: 2, Name: "B", Slug: "dup"},
			},
		})
		assert.ErrorIs(t, err, ErrDuplicateSlug)
		// Failed restore leaves the engine untouched.
		assert.Equal(t, []string{"editor"}, roleSlugs(engine.RolesOf(ctx, 1)))
	})

	t.Run("invalid slug", func(t *testing.T) {
		engine := base(t)
		err := engine.Restore(ctx, &Snapshot{
			Permissions: []Permission{{ID: 1, Name: "Bad", Slug: "42"}},
		})
		assert.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("edge to unknown role", func(t *testing.T) {
		engine := base(t)
		err := engine.Restore(ctx, &Snapshot{
			UserRoles: []UserRole{{UserID: 1, RoleID: 99}},
		})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, []string{"editor"}, roleSlugs(engine.RolesOf(ctx, 1)))
	})

	t.Run("role permission edge to unknown permission", func(t *testing.T) {
		engine := base(t)
		err := engine.Restore(ctx, &Snapshot{
			Roles:           []Role{{ID: 1, Name: "A", Slug: "a"}},
			RolePermissions: []RolePermission{{RoleID: 1, PermissionID: 99}},
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRestorePurgesCache(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()
	seedEntities(t, engine)
	require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts")))

	// Warm the cache with the pre-restore state.
	has, err := engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
	require.NoError(t, err)
	require.True(t, has)

	// Restore a state where user 1 holds nothing.
	donor := NewEngine()
	seedEntities(t, donor)
	require.NoError(t, engine.Restore(ctx, donor.Snapshot(ctx)))
	assert.Equal(t, 0, engine.CacheStats().Entries)

	has, err = engine.HasPermission(ctx, 1, RefBySlug("view-posts"))
	require.NoError(t, err)
	assert.False(t, has)
}
