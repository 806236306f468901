package rbac

import (
	"context"
	"errors"
	"fmt"
)

// SeedEntry pairs a role with the permission slugs it carries.
type SeedEntry struct {
	Role        Role
	Permissions []string
}

// DefaultPermissions returns the baseline permission set installed into a
// fresh engine.
func DefaultPermissions() []Permission {
	return []Permission{
		{Name: "Manage Users", Slug: "manage-users", Description: "Manage Users permission"},
		{Name: "Manage Roles", Slug: "manage-roles", Description: "Manage Roles permission"},
		{Name: "Manage Permissions", Slug: "manage-permissions", Description: "Manage Permissions permission"},
		{Name: "View Posts", Slug: "view-posts", Description: "View Posts permission"},
		{Name: "Create Posts", Slug: "create-posts", Description: "Create Posts permission"},
		{Name: "Edit Posts", Slug: "edit-posts", Description: "Edit Posts permission"},
		{Name: "Delete Posts", Slug: "delete-posts", Description: "Delete Posts permission"},
		{Name: "Publish Posts", Slug: "publish-posts", Description: "Publish Posts permission"},
	}
}

// DefaultRoles returns the baseline roles with their permission grants.
func DefaultRoles() []SeedEntry {
	return []SeedEntry{
		{
			Role: Role{Name: "Super Admin", Slug: "super-admin", Description: "Super Admin role"},
			Permissions: []string{
				"manage-users", "manage-roles", "manage-permissions",
				"view-posts", "create-posts", "edit-posts", "delete-posts", "publish-posts",
			},
		},
		{
			Role:        Role{Name: "Admin", Slug: "admin", Description: "Admin role"},
			Permissions: []string{"manage-users", "manage-roles", "manage-permissions"},
		},
		{
			Role:        Role{Name: "Editor", Slug: "editor", Description: "Editor role"},
			Permissions: []string{"view-posts", "create-posts", "edit-posts", "publish-posts"},
		},
		{
			Role:        Role{Name: "Moderator", Slug: "moderator", Description: "Moderator role"},
			Permissions: []string{"view-posts", "edit-posts", "delete-posts"},
		},
		{
			Role:        Role{Name: "Author", Slug: "author", Description: "Author role"},
			Permissions: []string{"view-posts", "create-posts", "edit-posts"},
		},
		{
			Role:        Role{Name: "Viewer", Slug: "viewer", Description: "Viewer role"},
			Permissions: []string{"view-posts"},
		},
	}
}

// Seed installs the default roles and permissions. Entities that already exist
// (by slug) are left untouched; grants are unioned, so seeding is idempotent.
func Seed(ctx context.Context, engine *Engine) error {
	for _, p := range DefaultPermissions() {
		if _, err := engine.CreatePermission(ctx, p.Name, p.Slug, p.Description); err != nil {
			if errors.Is(err, ErrDuplicateSlug) {
				continue
			}
			return fmt.Errorf("seed permission %q: %w", p.Slug, err)
		}
	}

	for _, entry := range DefaultRoles() {
		if _, err := engine.CreateRole(ctx, entry.Role.Name, entry.Role.Slug, entry.Role.Description); err != nil && !errors.Is(err, ErrDuplicateSlug) {
			return fmt.Errorf("seed role %q: %w", entry.Role.Slug, err)
		}
		refs := make([]Ref, 0, len(entry.Permissions))
		for _, slug := range entry.Permissions {
			refs = append(refs, RefBySlug(slug))
		}
		if err := engine.GrantRolePermissions(ctx, RefBySlug(entry.Role.Slug), refs...); err != nil {
			return fmt.Errorf("seed grants for role %q: %w", entry.Role.Slug, err)
		}
	}
	return nil
}
