package rbac

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// validateSlug enforces the slug shape: non-empty, no whitespace, no pipe
// (reserved for requirement alternatives), and not purely numeric so a slug
// can never collide with an id token at the reference boundary.
func validateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: empty slug", ErrInvalidReference)
	}
	if strings.ContainsAny(slug, " \t\n|") {
		return fmt.Errorf("%w: slug %q contains reserved characters", ErrInvalidReference, slug)
	}
	if _, err := strconv.ParseInt(slug, 10, 64); err == nil {
		return fmt.Errorf("%w: slug %q is purely numeric", ErrInvalidReference, slug)
	}
	return nil
}

// CreateRole registers a new role. Slug uniqueness is case-sensitive exact match.
func (e *Engine) CreateRole(ctx context.Context, name, slug, description string) (Role, error) {
	if err := validateSlug(slug); err != nil {
		return Role{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.roleBySlug[slug]; exists {
		return Role{}, fmt.Errorf("%w: role %q", ErrDuplicateSlug, slug)
	}

	e.nextRoleID++
	now := time.Now().UTC()
	role := &Role{
		ID:          e.nextRoleID,
		Slug:        slug,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.roles[role.ID] = role
	e.roleBySlug[slug] = role.ID
	return *role, nil
}

// CreatePermission registers a new permission.
func (e *Engine) CreatePermission(ctx context.Context, name, slug, description string) (Permission, error) {
	if err := validateSlug(slug); err != nil {
		return Permission{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.permBySlug[slug]; exists {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrDuplicateSlug, slug)
	}

	e.nextPermID++
	now := time.Now().UTC()
	perm := &Permission{
		ID:          e.nextPermID,
		Slug:        slug,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.perms[perm.ID] = perm
	e.permBySlug[slug] = perm.ID
	return *perm, nil
}

// GetRole fetches a role by id.
func (e *Engine) GetRole(ctx context.Context, id int64) (Role, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	role, ok := e.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", ErrNotFound, id)
	}
	return *role, nil
}

// GetPermission fetches a permission by id.
func (e *Engine) GetPermission(ctx context.Context, id int64) (Permission, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	perm, ok := e.perms[id]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %d", ErrNotFound, id)
	}
	return *perm, nil
}

// FindRoleBySlug fetches a role by slug, exact match.
func (e *Engine) FindRoleBySlug(ctx context.Context, slug string) (Role, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	id, ok := e.roleBySlug[slug]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %q", ErrNotFound, slug)
	}
	return *e.roles[id], nil
}

// FindPermissionBySlug fetches a permission by slug, exact match.
func (e *Engine) FindPermissionBySlug(ctx context.Context, slug string) (Permission, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	id, ok := e.permBySlug[slug]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrNotFound, slug)
	}
	return *e.perms[id], nil
}

// ListRoles returns all roles ordered by slug.
func (e *Engine) ListRoles(ctx context.Context) []Role {
	e.mu.RLock()
	defer e.mu.RUnlock()

	roles := make([]Role, 0, len(e.roles))
	for _, r := range e.roles {
		roles = append(roles, *r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Slug < roles[j].Slug })
	return roles
}

// ListPermissions returns all permissions ordered by slug.
func (e *Engine) ListPermissions(ctx context.Context) []Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()

	perms := make([]Permission, 0, len(e.perms))
	for _, p := range e.perms {
		perms = append(perms, *p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Slug < perms[j].Slug })
	return perms
}

// UpdateRole applies a partial update. A slug change re-validates uniqueness
// excluding the role itself.
func (e *Engine) UpdateRole(ctx context.Context, id int64, upd RoleUpdate) (Role, error) {
	if upd.Slug != nil {
		if err := validateSlug(*upd.Slug); err != nil {
			return Role{}, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", ErrNotFound, id)
	}

	if upd.Slug != nil && *upd.Slug != role.Slug {
		if other, exists := e.roleBySlug[*upd.Slug]; exists && other != id {
			return Role{}, fmt.Errorf("%w: role %q", ErrDuplicateSlug, *upd.Slug)
		}
		delete(e.roleBySlug, role.Slug)
		role.Slug = *upd.Slug
		e.roleBySlug[role.Slug] = id
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	role.UpdatedAt = time.Now().UTC()
	return *role, nil
}

// UpdatePermission applies a partial update to a permission.
func (e *Engine) UpdatePermission(ctx context.Context, id int64, upd PermissionUpdate) (Permission, error) {
	if upd.Slug != nil {
		if err := validateSlug(*upd.Slug); err != nil {
			return Permission{}, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	perm, ok := e.perms[id]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %d", ErrNotFound, id)
	}

	if upd.Slug != nil && *upd.Slug != perm.Slug {
		if other, exists := e.permBySlug[*upd.Slug]; exists && other != id {
			return Permission{}, fmt.Errorf("%w: permission %q", ErrDuplicateSlug, *upd.Slug)
		}
		delete(e.permBySlug, perm.Slug)
		perm.Slug = *upd.Slug
		e.permBySlug[perm.Slug] = id
	}
	if upd.Name != nil {
		perm.Name = *upd.Name
	}
	if upd.Description != nil {
		perm.Description = *upd.Description
	}
	perm.UpdatedAt = time.Now().UTC()
	return *perm, nil
}

// DeleteRole removes a role together with every grant edge referencing it, as
// one atomic step. Every user holding the role loses its derived permissions
// immediately; their cache entries are invalidated inside the same critical
// section.
func (e *Engine) DeleteRole(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles[id]
	if !ok {
		return fmt.Errorf("%w: role %d", ErrNotFound, id)
	}

	for userID := range e.roleUsers[id] {
		removeEdge(e.userRoles, e.roleUsers, userID, id)
		e.cache.invalidate(userID)
	}
	for permID := range e.rolePerms[id] {
		removeEdge(e.rolePerms, e.permRoles, id, permID)
	}
	delete(e.roleUsers, id)
	delete(e.rolePerms, id)
	delete(e.roleBySlug, role.Slug)
	delete(e.roles, id)
	return nil
}

// DeletePermission removes a permission and cascades: direct grants and
// role-permission edges referencing it are dropped, and every principal whose
// reachable set included it is invalidated.
func (e *Engine) DeletePermission(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	perm, ok := e.perms[id]
	if !ok {
		return fmt.Errorf("%w: permission %d", ErrNotFound, id)
	}

	for userID := range e.permUsers[id] {
		removeEdge(e.userPerms, e.permUsers, userID, id)
		e.cache.invalidate(userID)
	}
	for roleID := range e.permRoles[id] {
		removeEdge(e.rolePerms, e.permRoles, roleID, id)
		for userID := range e.roleUsers[roleID] {
			e.cache.invalidate(userID)
		}
	}
	delete(e.permUsers, id)
	delete(e.permRoles, id)
	delete(e.permBySlug, perm.Slug)
	delete(e.perms, id)
	return nil
}
