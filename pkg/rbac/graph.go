package rbac

import (
	"context"
	"fmt"
	"sort"
)

// roleIDLocked resolves a role reference against the entity store.
// Caller must hold at least the read lock.
func (e *Engine) roleIDLocked(ref Ref) (int64, bool) {
	if ref.byID {
		_, ok := e.roles[ref.id]
		return ref.id, ok
	}
	id, ok := e.roleBySlug[ref.slug]
	return id, ok
}

// permIDLocked resolves a permission reference against the entity store.
func (e *Engine) permIDLocked(ref Ref) (int64, bool) {
	if ref.byID {
		_, ok := e.perms[ref.id]
		return ref.id, ok
	}
	id, ok := e.permBySlug[ref.slug]
	return id, ok
}

// resolveRolesLocked resolves every reference or fails without mutating
// anything, so a partially-unknown batch never half-applies.
func (e *Engine) resolveRolesLocked(refs []Ref) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		id, ok := e.roleIDLocked(ref)
		if !ok {
			return nil, fmt.Errorf("%w: role %s", ErrNotFound, ref)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) resolvePermsLocked(refs []Ref) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		id, ok := e.permIDLocked(ref)
		if !ok {
			return nil, fmt.Errorf("%w: permission %s", ErrNotFound, ref)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AssignRoles adds user↔role edges. Already-present edges are no-ops: the
// operation is a union and never removes existing grants.
func (e *Engine) AssignRoles(ctx context.Context, userID int64, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.resolveRolesLocked(refs)
	if err != nil {
		return err
	}

	changed := false
	for _, roleID := range ids {
		if addEdge(e.userRoles, e.roleUsers, userID, roleID) {
			changed = true
		}
	}
	if changed {
		e.cache.invalidate(userID)
	}
	return nil
}

// RemoveRoles removes the given user↔role edges. Absent edges are silently
// ignored.
func (e *Engine) RemoveRoles(ctx context.Context, userID int64, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.resolveRolesLocked(refs)
	if err != nil {
		return err
	}

	changed := false
	for _, roleID := range ids {
		if removeEdge(e.userRoles, e.roleUsers, userID, roleID) {
			changed = true
		}
	}
	if changed {
		e.cache.invalidate(userID)
	}
	return nil
}

// SyncRoles replaces the user's role set with exactly the given set, which may
// be empty. The replacement is atomic: no reader observes a partial state.
func (e *Engine) SyncRoles(ctx context.Context, userID int64, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.resolveRolesLocked(refs)
	if err != nil {
		return err
	}

	target := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		target[id] = struct{}{}
	}

	changed := false
	for roleID := range e.userRoles[userID] {
		if _, keep := target[roleID]; !keep {
			removeEdge(e.userRoles, e.roleUsers, userID, roleID)
			changed = true
		}
	}
	for roleID := range target {
		if addEdge(e.userRoles, e.roleUsers, userID, roleID) {
			changed = true
		}
	}
	if changed {
		e.cache.invalidate(userID)
	}
	return nil
}

// GrantPermissions adds direct user↔permission edges, bypassing roles.
func (e *Engine) GrantPermissions(ctx context.Context, userID int64, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.resolvePermsLocked(refs)
	if err != nil {
		return err
	}

	changed := false
	for _, permID := range ids {
		if addEdge(e.userPerms, e.permUsers, userID, permID) {
			changed = true
		}
	}
	if changed {
		e.cache.invalidate(userID)
	}
	return nil
}

// RevokePermissions removes direct grants. Absent edges are silently ignored.
func (e *Engine) RevokePermissions(ctx context.Context, userID int64, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.resolvePermsLocked(refs)
	if err != nil {
		return err
	}

	changed := false
	for _, permID := range ids {
		if removeEdge(e.userPerms, e.permUsers, userID, permID) {
			changed = true
		}
	}
	if changed {
		e.cache.invalidate(userID)
	}
	return nil
}

// SyncPermissions replaces the user's direct permission set atomically.
func (e *Engine) SyncPermissions(ctx context.Context, userID int64, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.resolvePermsLocked(refs)
	if err != nil {
		return err
	}

	target := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		target[id] = struct{}{}
	}

	changed := false
	for permID := range e.userPerms[userID] {
		if _, keep := target[permID]; !keep {
			removeEdge(e.userPerms, e.permUsers, userID, permID)
			changed = true
		}
	}
	for permID := range target {
		if addEdge(e.userPerms, e.permUsers, userID, permID) {
			changed = true
		}
	}
	if changed {
		e.cache.invalidate(userID)
	}
	return nil
}

// GrantRolePermissions adds role↔permission edges. Every user currently
// holding the role is invalidated; the reverse role→users index bounds the
// cost to affected principals.
func (e *Engine) GrantRolePermissions(ctx context.Context, roleRef Ref, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	roleID, ok := e.roleIDLocked(roleRef)
	if !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleRef)
	}
	ids, err := e.resolvePermsLocked(refs)
	if err != nil {
		return err
	}

	changed := false
	for _, permID := range ids {
		if addEdge(e.rolePerms, e.permRoles, roleID, permID) {
			changed = true
		}
	}
	if changed {
		e.invalidateRoleHoldersLocked(roleID)
	}
	return nil
}

// RevokeRolePermissions removes role↔permission edges; absent edges are no-ops.
func (e *Engine) RevokeRolePermissions(ctx context.Context, roleRef Ref, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	roleID, ok := e.roleIDLocked(roleRef)
	if !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleRef)
	}
	ids, err := e.resolvePermsLocked(refs)
	if err != nil {
		return err
	}

	changed := false
	for _, permID := range ids {
		if removeEdge(e.rolePerms, e.permRoles, roleID, permID) {
			changed = true
		}
	}
	if changed {
		e.invalidateRoleHoldersLocked(roleID)
	}
	return nil
}

// SyncRolePermissions replaces a role's permission set atomically.
func (e *Engine) SyncRolePermissions(ctx context.Context, roleRef Ref, refs ...Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	roleID, ok := e.roleIDLocked(roleRef)
	if !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleRef)
	}
	ids, err := e.resolvePermsLocked(refs)
	if err != nil {
		return err
	}

	target := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		target[id] = struct{}{}
	}

	changed := false
	for permID := range e.rolePerms[roleID] {
		if _, keep := target[permID]; !keep {
			removeEdge(e.rolePerms, e.permRoles, roleID, permID)
			changed = true
		}
	}
	for permID := range target {
		if addEdge(e.rolePerms, e.permRoles, roleID, permID) {
			changed = true
		}
	}
	if changed {
		e.invalidateRoleHoldersLocked(roleID)
	}
	return nil
}

func (e *Engine) invalidateRoleHoldersLocked(roleID int64) {
	for userID := range e.roleUsers[roleID] {
		e.cache.invalidate(userID)
	}
}

// RolesOf returns the roles assigned to a user, ordered by slug.
func (e *Engine) RolesOf(ctx context.Context, userID int64) []Role {
	e.mu.RLock()
	defer e.mu.RUnlock()

	roles := make([]Role, 0, len(e.userRoles[userID]))
	for roleID := range e.userRoles[userID] {
		roles = append(roles, *e.roles[roleID])
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Slug < roles[j].Slug })
	return roles
}

// DirectPermissionsOf returns the permissions granted straight to a user,
// excluding anything derived through roles. Ordered by slug.
func (e *Engine) DirectPermissionsOf(ctx context.Context, userID int64) []Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()

	perms := make([]Permission, 0, len(e.userPerms[userID]))
	for permID := range e.userPerms[userID] {
		perms = append(perms, *e.perms[permID])
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Slug < perms[j].Slug })
	return perms
}

// RolePermissions returns the permissions attached to a role, ordered by slug.
func (e *Engine) RolePermissions(ctx context.Context, roleRef Ref) ([]Permission, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	roleID, ok := e.roleIDLocked(roleRef)
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, roleRef)
	}
	perms := make([]Permission, 0, len(e.rolePerms[roleID]))
	for permID := range e.rolePerms[roleID] {
		perms = append(perms, *e.perms[permID])
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Slug < perms[j].Slug })
	return perms, nil
}
