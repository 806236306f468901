package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEntities(t *testing.T, engine *Engine) {
	t.Helper()
	ctx := context.Background()
	for _, slug := range []string{"editor", "viewer", "moderator"} {
		_, err := engine.CreateRole(ctx, slug, slug, "")
		require.NoError(t, err)
	}
	for _, slug := range []string{"view-posts", "edit-posts", "delete-posts"} {
		_, err := engine.CreatePermission(ctx, slug, slug, "")
		require.NoError(t, err)
	}
}

func roleSlugs(roles []Role) []string {
	slugs := make([]string, 0, len(roles))
	for _, r := range roles {
		slugs = append(slugs, r.Slug)
	}
	return slugs
}

func permSlugs(perms []Permission) []string {
	slugs := make([]string, 0, len(perms))
	for _, p := range perms {
		slugs = append(slugs, p.Slug)
	}
	return slugs
}

func TestAssignRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("assign keeps existing assignments", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor")))
		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("viewer")))

		assert.Equal(t, []string{"editor", "viewer"}, roleSlugs(engine.RolesOf(ctx, 1)))
	})

	t.Run("assign is idempotent", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor")))
		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor")))

		assert.Len(t, engine.RolesOf(ctx, 1), 1)
	})

	t.Run("mixed id and slug references", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		editor, err := engine.FindRoleBySlug(ctx, "editor")
		require.NoError(t, err)
		require.NoError(t, engine.AssignRoles(ctx, 1, RefByID(editor.ID), RefBySlug("viewer")))
		assert.Len(t, engine.RolesOf(ctx, 1), 2)
	})

	t.Run("unknown role fails whole batch", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		err := engine.AssignRoles(ctx, 1, RefBySlug("editor"), RefBySlug("no-such-role"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, engine.RolesOf(ctx, 1))
	})
}

func TestRemoveRoles(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()
	seedEntities(t, engine)

	require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor"), RefBySlug("viewer")))
	require.NoError(t, engine.RemoveRoles(ctx, 1, RefBySlug("editor")))

	assert.Equal(t, []string{"viewer"}, roleSlugs(engine.RolesOf(ctx, 1)))

	// Removing an absent edge is silently ignored.
	require.NoError(t, engine.RemoveRoles(ctx, 1, RefBySlug("editor")))
	assert.Equal(t, []string{"viewer"}, roleSlugs(engine.RolesOf(ctx, 1)))
}

func TestSyncRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the whole set", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor"), RefBySlug("viewer")))
		require.NoError(t, engine.SyncRoles(ctx, 1, RefBySlug("moderator")))

		assert.Equal(t, []string{"moderator"}, roleSlugs(engine.RolesOf(ctx, 1)))
	})

	t.Run("empty sync clears all roles", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor"), RefBySlug("viewer")))
		require.NoError(t, engine.SyncRoles(ctx, 1))

		assert.Empty(t, engine.RolesOf(ctx, 1))
	})

	t.Run("unknown reference leaves state untouched", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		require.NoError(t, engine.AssignRoles(ctx, 1, RefBySlug("editor")))
		err := engine.SyncRoles(ctx, 1, RefBySlug("viewer"), RefBySlug("no-such-role"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, []string{"editor"}, roleSlugs(engine.RolesOf(ctx, 1)))
	})
}

func TestDirectPermissions(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()
	seedEntities(t, engine)

	require.NoError(t, engine.GrantPermissions(ctx, 1, RefBySlug("view-posts"), RefBySlug("edit-posts")))
	assert.Equal(t, []string{"edit-posts", "view-posts"}, permSlugs(engine.DirectPermissionsOf(ctx, 1)))

	require.NoError(t, engine.RevokePermissions(ctx, 1, RefBySlug("edit-posts")))
	assert.Equal(t, []string{"view-posts"}, permSlugs(engine.DirectPermissionsOf(ctx, 1)))

	require.NoError(t, engine.SyncPermissions(ctx, 1, RefBySlug("delete-posts")))
	assert.Equal(t, []string{"delete-posts"}, permSlugs(engine.DirectPermissionsOf(ctx, 1)))

	require.NoError(t, engine.SyncPermissions(ctx, 1))
	assert.Empty(t, engine.DirectPermissionsOf(ctx, 1))
}

func TestRolePermissionGrants(t *testing.T) {
	ctx := context.Background()

	t.Run("grant revoke sync", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		require.NoError(t, engine.GrantRolePermissions(ctx, RefBySlug("editor"),
			RefBySlug("view-posts"), RefBySlug("edit-posts")))

		perms, err := engine.RolePermissions(ctx, RefBySlug("editor"))
		require.NoError(t, err)
		assert.Equal(t, []string{"edit-posts", "view-posts"}, permSlugs(perms))

		require.NoError(t, engine.RevokeRolePermissions(ctx, RefBySlug("editor"), RefBySlug("edit-posts")))
		perms, err = engine.RolePermissions(ctx, RefBySlug("editor"))
		require.NoError(t, err)
		assert.Equal(t, []string{"view-posts"}, permSlugs(perms))

		require.NoError(t, engine.SyncRolePermissions(ctx, RefBySlug("editor"), RefBySlug("delete-posts")))
		perms, err = engine.RolePermissions(ctx, RefBySlug("editor"))
		require.NoError(t, err)
		assert.Equal(t, []string{"delete-posts"}, permSlugs(perms))
	})

	t.Run("unknown role", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		err := engine.GrantRolePermissions(ctx, RefBySlug("no-such-role"), RefBySlug("view-posts"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown permission fails whole batch", func(t *testing.T) {
		engine := NewEngine()
		seedEntities(t, engine)

		err := engine.GrantRolePermissions(ctx, RefBySlug("editor"),
			RefBySlug("view-posts"), RefBySlug("no-such-permission"))
		assert.ErrorIs(t, err, ErrNotFound)

		perms, err := engine.RolePermissions(ctx, RefBySlug("editor"))
		require.NoError(t, err)
		assert.Empty(t, perms)
	})
}
