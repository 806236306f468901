package rbac

import (
	"context"
	"fmt"
	"sort"
)

// resolvedSetLocked returns the effective permission-id set for a principal:
// direct grants unioned with the permissions of every assigned role. Serves
// from the cache when current, otherwise computes and memoizes. Caller must
// hold at least the read lock, which also keeps the generation stamp stable
// for the duration of a fill.
func (e *Engine) resolvedSetLocked(userID int64) map[int64]struct{} {
	if set, ok := e.cache.get(userID); ok {
		return set
	}

	gen := e.cache.generation(userID)
	set := make(map[int64]struct{}, len(e.userPerms[userID]))
	for permID := range e.userPerms[userID] {
		set[permID] = struct{}{}
	}
	for roleID := range e.userRoles[userID] {
		for permID := range e.rolePerms[roleID] {
			set[permID] = struct{}{}
		}
	}
	e.cache.put(userID, set, gen)
	return set
}

// PermissionsOf returns the principal's effective permission set, ordered by
// slug. A principal with no grants yields an empty slice, not an error.
func (e *Engine) PermissionsOf(ctx context.Context, userID int64) []Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()

	set := e.resolvedSetLocked(userID)
	perms := make([]Permission, 0, len(set))
	for permID := range set {
		if p, ok := e.perms[permID]; ok {
			perms = append(perms, *p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Slug < perms[j].Slug })
	return perms
}

// HasPermission reports whether the principal holds the referenced permission,
// directly or through any assigned role. An unresolvable reference fails with
// ErrInvalidReference rather than reporting false, so "lacks permission" and
// "unknown permission" stay distinguishable.
func (e *Engine) HasPermission(ctx context.Context, userID int64, ref Ref) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	permID, ok := e.permIDLocked(ref)
	if !ok {
		return false, fmt.Errorf("%w: permission %s", ErrInvalidReference, ref)
	}
	set := e.resolvedSetLocked(userID)
	_, has := set[permID]
	return has, nil
}

// HasRole reports direct role membership.
func (e *Engine) HasRole(ctx context.Context, userID int64, ref Ref) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	roleID, ok := e.roleIDLocked(ref)
	if !ok {
		return false, fmt.Errorf("%w: role %s", ErrInvalidReference, ref)
	}
	_, has := e.userRoles[userID][roleID]
	return has, nil
}

// HasAnyPermission is a short-circuit OR over HasPermission.
func (e *Engine) HasAnyPermission(ctx context.Context, userID int64, refs ...Ref) (bool, error) {
	for _, ref := range refs {
		has, err := e.HasPermission(ctx, userID, ref)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions is a short-circuit AND over HasPermission.
func (e *Engine) HasAllPermissions(ctx context.Context, userID int64, refs ...Ref) (bool, error) {
	for _, ref := range refs {
		has, err := e.HasPermission(ctx, userID, ref)
		if err != nil {
			return false, err
		}
		if !has {
			return false, nil
		}
	}
	return true, nil
}

// HasAnyRole is a short-circuit OR over HasRole.
func (e *Engine) HasAnyRole(ctx context.Context, userID int64, refs ...Ref) (bool, error) {
	for _, ref := range refs {
		has, err := e.HasRole(ctx, userID, ref)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

// HasAllRoles is a short-circuit AND over HasRole.
func (e *Engine) HasAllRoles(ctx context.Context, userID int64, refs ...Ref) (bool, error) {
	for _, ref := range refs {
		has, err := e.HasRole(ctx, userID, ref)
		if err != nil {
			return false, err
		}
		if !has {
			return false, nil
		}
	}
	return true, nil
}
