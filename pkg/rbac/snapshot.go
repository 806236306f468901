package rbac

import (
	"context"
	"fmt"
)

// Snapshot is a complete, consistent copy of the engine's canonical state:
// entities plus the three grant relations. Resolved permission sets are never
// part of a snapshot; they are always derivable.
type Snapshot struct {
	Roles           []Role           `json:"roles"`
	Permissions     []Permission     `json:"permissions"`
	UserRoles       []UserRole       `json:"user_roles"`
	UserPermissions []UserPermission `json:"user_permissions"`
	RolePermissions []RolePermission `json:"role_permissions"`
}

// Snapshotter is the persistence collaborator contract. Save must write the
// whole snapshot atomically (a loader must never observe a partial state);
// Load returns the last saved snapshot, or an empty one for a fresh store.
type Snapshotter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Snapshot captures the current engine state under the shared lock.
func (e *Engine) Snapshot(ctx context.Context) *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &Snapshot{}
	for _, r := range e.roles {
		snap.Roles = append(snap.Roles, *r)
	}
	for _, p := range e.perms {
		snap.Permissions = append(snap.Permissions, *p)
	}
	for userID, set := range e.userRoles {
		for roleID := range set {
			snap.UserRoles = append(snap.UserRoles, UserRole{UserID: userID, RoleID: roleID})
		}
	}
	for userID, set := range e.userPerms {
		for permID := range set {
			snap.UserPermissions = append(snap.UserPermissions, UserPermission{UserID: userID, PermissionID: permID})
		}
	}
	for roleID, set := range e.rolePerms {
		for permID := range set {
			snap.RolePermissions = append(snap.RolePermissions, RolePermission{RoleID: roleID, PermissionID: permID})
		}
	}
	return snap
}

// Restore replaces the entire engine state with the snapshot's contents and
// purges the cache. Edges referencing unknown entities fail the whole restore;
// nothing is applied on error.
func (e *Engine) Restore(ctx context.Context, snap *Snapshot) error {
	roles := make(map[int64]*Role, len(snap.Roles))
	roleBySlug := make(map[string]int64, len(snap.Roles))
	var nextRoleID int64
	for i := range snap.Roles {
		r := snap.Roles[i]
		if err := validateSlug(r.Slug); err != nil {
			return fmt.Errorf("restore role %d: %w", r.ID, err)
		}
		if _, dup := roleBySlug[r.Slug]; dup {
			return fmt.Errorf("restore: %w: role %q", ErrDuplicateSlug, r.Slug)
		}
		roles[r.ID] = &r
		roleBySlug[r.Slug] = r.ID
		if r.ID > nextRoleID {
			nextRoleID = r.ID
		}
	}

	perms := make(map[int64]*Permission, len(snap.Permissions))
	permBySlug := make(map[string]int64, len(snap.Permissions))
	var nextPermID int64
	for i := range snap.Permissions {
		p := snap.Permissions[i]
		if err := validateSlug(p.Slug); err != nil {
			return fmt.Errorf("restore permission %d: %w", p.ID, err)
		}
		if _, dup := permBySlug[p.Slug]; dup {
			return fmt.Errorf("restore: %w: permission %q", ErrDuplicateSlug, p.Slug)
		}
		perms[p.ID] = &p
		permBySlug[p.Slug] = p.ID
		if p.ID > nextPermID {
			nextPermID = p.ID
		}
	}

	userRoles := make(map[int64]map[int64]struct{})
	roleUsers := make(map[int64]map[int64]struct{})
	for _, edge := range snap.UserRoles {
		if _, ok := roles[edge.RoleID]; !ok {
			return fmt.Errorf("restore user_role edge: %w: role %d", ErrNotFound, edge.RoleID)
		}
		addEdge(userRoles, roleUsers, edge.UserID, edge.RoleID)
	}

	userPerms := make(map[int64]map[int64]struct{})
	permUsers := make(map[int64]map[int64]struct{})
	for _, edge := range snap.UserPermissions {
		if _, ok := perms[edge.PermissionID]; !ok {
			return fmt.Errorf("restore user_permission edge: %w: permission %d", ErrNotFound, edge.PermissionID)
		}
		addEdge(userPerms, permUsers, edge.UserID, edge.PermissionID)
	}

	rolePerms := make(map[int64]map[int64]struct{})
	permRoles := make(map[int64]map[int64]struct{})
	for _, edge := range snap.RolePermissions {
		if _, ok := roles[edge.RoleID]; !ok {
			return fmt.Errorf("restore role_permission edge: %w: role %d", ErrNotFound, edge.RoleID)
		}
		if _, ok := perms[edge.PermissionID]; !ok {
			return fmt.Errorf("restore role_permission edge: %w: permission %d", ErrNotFound, edge.PermissionID)
		}
		addEdge(rolePerms, permRoles, edge.RoleID, edge.PermissionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.roles = roles
	e.perms = perms
	e.roleBySlug = roleBySlug
	e.permBySlug = permBySlug
	e.nextRoleID = nextRoleID
	e.nextPermID = nextPermID
	e.userRoles = userRoles
	e.roleUsers = roleUsers
	e.userPerms = userPerms
	e.permUsers = permUsers
	e.rolePerms = rolePerms
	e.permRoles = permRoles
	e.cache.purge()
	return nil
}
