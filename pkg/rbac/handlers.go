package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/aegis/pkg/audit"
	"github.com/platinummonkey/aegis/pkg/httputil"
)

// Handlers provides HTTP handlers for the authorization engine
type Handlers struct {
	engine      *Engine
	gate        *Gate
	auditLogger audit.Logger
}

// NewHandlers creates handlers over the engine. The audit logger may be nil;
// gate options configure the gate behind /rbac/check.
func NewHandlers(engine *Engine, auditLogger audit.Logger, gateOpts ...GateOption) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{
		engine:      engine,
		gate:        NewGate(engine, gateOpts...),
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers all authorization routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Role management
	router.HandleFunc("/rbac/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/rbac/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/rbac/roles/{ref}", h.GetRole).Methods("GET")
	router.HandleFunc("/rbac/roles/{ref}", h.UpdateRole).Methods("PATCH")
	router.HandleFunc("/rbac/roles/{ref}", h.DeleteRole).Methods("DELETE")

	// Permission management
	router.HandleFunc("/rbac/permissions", h.CreatePermission).Methods("POST")
	router.HandleFunc("/rbac/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/rbac/permissions/{ref}", h.GetPermission).Methods("GET")
	router.HandleFunc("/rbac/permissions/{ref}", h.UpdatePermission).Methods("PATCH")
	router.HandleFunc("/rbac/permissions/{ref}", h.DeletePermission).Methods("DELETE")

	// Role permission grants
	router.HandleFunc("/rbac/roles/{ref}/permissions", h.GetRolePermissions).Methods("GET")
	router.HandleFunc("/rbac/roles/{ref}/permissions", h.GrantRolePermissions).Methods("POST")
	router.HandleFunc("/rbac/roles/{ref}/permissions", h.SyncRolePermissions).Methods("PUT")
	router.HandleFunc("/rbac/roles/{ref}/permissions", h.RevokeRolePermissions).Methods("DELETE")

	// User role assignments
	router.HandleFunc("/rbac/users/{id}/roles", h.GetUserRoles).Methods("GET")
	router.HandleFunc("/rbac/users/{id}/roles", h.AssignUserRoles).Methods("POST")
	router.HandleFunc("/rbac/users/{id}/roles", h.SyncUserRoles).Methods("PUT")
	router.HandleFunc("/rbac/users/{id}/roles", h.RemoveUserRoles).Methods("DELETE")

	// Direct user permission grants and the effective set
	router.HandleFunc("/rbac/users/{id}/permissions", h.GetUserPermissions).Methods("GET")
	router.HandleFunc("/rbac/users/{id}/permissions", h.GrantUserPermissions).Methods("POST")
	router.HandleFunc("/rbac/users/{id}/permissions", h.SyncUserPermissions).Methods("PUT")
	router.HandleFunc("/rbac/users/{id}/permissions", h.RevokeUserPermissions).Methods("DELETE")

	// Authorization checks
	router.HandleFunc("/rbac/check", h.Check).Methods("POST")

	// Cache introspection
	router.HandleFunc("/rbac/cache/stats", h.CacheStats).Methods("GET")
}

// writeEngineError maps engine errors onto HTTP responses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrDuplicateSlug):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrInvalidReference):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

// refVar parses the {ref} path variable.
func refVar(r *http.Request) (Ref, error) {
	return ParseRef(mux.Vars(r)["ref"])
}

// userIDVar parses the {id} path variable as an int64 user id.
func userIDVar(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: user id %q", ErrInvalidReference, raw)
	}
	return id, nil
}

type entityRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type refsRequest struct {
	Refs []string `json:"refs"`
}

// parseRefsBody decodes a refs payload and resolves its tokens.
func parseRefsBody(r *http.Request) ([]Ref, error) {
	var req refsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: invalid request body", ErrInvalidReference)
	}
	return ParseRefs(req.Refs)
}

// CreateRole creates a new role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	role, err := h.engine.CreateRole(r.Context(), req.Name, req.Slug, req.Description)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	_ = audit.LogMutation(r.Context(), h.auditLogger, audit.EventTypeRoleCreate,
		audit.ResourceTypeRole, role.Slug, "role created")
	httputil.WriteCreated(w, role)
}

// ListRoles lists all roles ordered by slug
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.engine.ListRoles(r.Context()))
}

// GetRole retrieves a role by id or slug
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.roleByVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole applies a partial update to a role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.roleByVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var upd RoleUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	updated, err := h.engine.UpdateRole(r.Context(), role.ID, upd)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	_ = audit.LogMutation(r.Context(), h.auditLogger, audit.EventTypeRoleUpdate,
		audit.ResourceTypeRole, updated.Slug, "role updated")
	httputil.WriteSuccess(w, updated)
}

// DeleteRole removes a role and cascades its grant edges
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.roleByVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.engine.DeleteRole(r.Context(), role.ID); err != nil {
		writeEngineError(w, err)
		return
	}

	_ = audit.LogMutation(r.Context(), h.auditLogger, audit.EventTypeRoleDelete,
		audit.ResourceTypeRole, role.Slug, "role deleted")
	httputil.WriteNoContent(w)
}

// CreatePermission creates a new permission
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	perm, err := h.engine.CreatePermission(r.Context(), req.Name, req.Slug, req.Description)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	_ = audit.LogMutation(r.Context(), h.auditLogger, audit.EventTypePermissionCreate,
		audit.ResourceTypePermission, perm.Slug, "permission created")
	httputil.WriteCreated(w, perm)
}

// ListPermissions lists all permissions ordered by slug
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.engine.ListPermissions(r.Context()))
}

// GetPermission retrieves a permission by id or slug
func (h *Handlers) GetPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.permissionByVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, perm)
}

// UpdatePermission applies a partial update to a permission
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.permissionByVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var upd PermissionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	updated, err := h.engine.UpdatePermission(r.Context(), perm.ID, upd)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	_ = audit.LogMutation(r.Context(), h.auditLogger, audit.EventTypePermissionUpdate,
		audit.ResourceTypePermission, updated.Slug, "permission updated")
	httputil.WriteSuccess(w, updated)
}

// DeletePermission removes a permission and cascades its grant edges
func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.permissionByVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.engine.DeletePermission(r.Context(), perm.ID); err != nil {
		writeEngineError(w, err)
		return
	}

	_ = audit.LogMutation(r.Context(), h.auditLogger, audit.EventTypePermissionDelete,
		audit.ResourceTypePermission, perm.Slug, "permission deleted")
	httputil.WriteNoContent(w)
}

// GetRolePermissions lists the permissions attached to a role
func (h *Handlers) GetRolePermissions(w http.ResponseWriter, r *http.Request) {
	ref, err := refVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	perms, err := h.engine.RolePermissions(r.Context(), ref)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// GrantRolePermissions adds permissions to a role, keeping existing grants
func (h *Handlers) GrantRolePermissions(w http.ResponseWriter, r *http.Request) {
	h.roleGrantOp(w, r, h.engine.GrantRolePermissions, audit.EventTypeAuthzPermissionGrant, "role permissions granted")
}

// SyncRolePermissions replaces a role's permission set
func (h *Handlers) SyncRolePermissions(w http.ResponseWriter, r *http.Request) {
	h.roleGrantOp(w, r, h.engine.SyncRolePermissions, audit.EventTypeAuthzPermissionSync, "role permissions synced")
}

// RevokeRolePermissions removes permissions from a role
func (h *Handlers) RevokeRolePermissions(w http.ResponseWriter, r *http.Request) {
	h.roleGrantOp(w, r, h.engine.RevokeRolePermissions, audit.EventTypeAuthzPermissionRevoke, "role permissions revoked")
}

// GetUserRoles lists a user's assigned roles
func (h *Handlers) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, h.engine.RolesOf(r.Context(), userID))
}

// AssignUserRoles adds roles to a user, keeping existing assignments
func (h *Handlers) AssignUserRoles(w http.ResponseWriter, r *http.Request) {
	h.userGrantOp(w, r, h.engine.AssignRoles, audit.EventTypeAuthzRoleAssign, "roles assigned")
}

// SyncUserRoles replaces a user's role set, possibly with an empty one
func (h *Handlers) SyncUserRoles(w http.ResponseWriter, r *http.Request) {
	h.userGrantOp(w, r, h.engine.SyncRoles, audit.EventTypeAuthzRoleSync, "roles synced")
}

// RemoveUserRoles removes roles from a user
func (h *Handlers) RemoveUserRoles(w http.ResponseWriter, r *http.Request) {
	h.userGrantOp(w, r, h.engine.RemoveRoles, audit.EventTypeAuthzRoleRemove, "roles removed")
}

// GetUserPermissions returns a user's permissions. By default this is the
// effective set (direct grants plus role-derived); ?direct=true narrows to
// direct grants only.
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if r.URL.Query().Get("direct") == "true" {
		httputil.WriteSuccess(w, h.engine.DirectPermissionsOf(r.Context(), userID))
		return
	}
	httputil.WriteSuccess(w, h.engine.PermissionsOf(r.Context(), userID))
}

// GrantUserPermissions adds direct permission grants to a user
func (h *Handlers) GrantUserPermissions(w http.ResponseWriter, r *http.Request) {
	h.userGrantOp(w, r, h.engine.GrantPermissions, audit.EventTypeAuthzPermissionGrant, "permissions granted")
}

// SyncUserPermissions replaces a user's direct permission set
func (h *Handlers) SyncUserPermissions(w http.ResponseWriter, r *http.Request) {
	h.userGrantOp(w, r, h.engine.SyncPermissions, audit.EventTypeAuthzPermissionSync, "permissions synced")
}

// RevokeUserPermissions removes direct permission grants from a user
func (h *Handlers) RevokeUserPermissions(w http.ResponseWriter, r *http.Request) {
	h.userGrantOp(w, r, h.engine.RevokePermissions, audit.EventTypeAuthzPermissionRevoke, "permissions revoked")
}

// CheckRequest is the payload for explicit authorization checks. Permissions
// and roles may be supplied together; the decision requires both to pass.
type CheckRequest struct {
	UserID      int64    `json:"user_id"`
	Permissions []string `json:"permissions,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Mode        Mode     `json:"mode,omitempty"`
}

// Check evaluates an explicit authorization query and returns the decision
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeAny
	}

	principal := PrincipalID(req.UserID)
	decision := Decision{Allowed: true, Reason: ReasonGranted}

	if len(req.Permissions) > 0 {
		refs, err := ParseRefs(req.Permissions)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		decision = h.gate.AuthorizePermissions(r.Context(), principal, Requirement{Refs: refs, Mode: mode})
	}
	if decision.Allowed && len(req.Roles) > 0 {
		refs, err := ParseRefs(req.Roles)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		decision = h.gate.AuthorizeRoles(r.Context(), principal, Requirement{Refs: refs, Mode: mode})
	}

	if !decision.Allowed && decision.Reason == ReasonForbidden {
		_ = audit.LogDenied(r.Context(), h.auditLogger, audit.ResourceTypeUser,
			strconv.FormatInt(req.UserID, 10), decision.Detail)
	}
	httputil.WriteSuccess(w, decision)
}

// CacheStats reports consistency cache counters
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.engine.CacheStats())
}

// roleByVar fetches the role named by the {ref} path variable.
func (h *Handlers) roleByVar(r *http.Request) (Role, error) {
	ref, err := refVar(r)
	if err != nil {
		return Role{}, err
	}
	if ref.byID {
		return h.engine.GetRole(r.Context(), ref.id)
	}
	return h.engine.FindRoleBySlug(r.Context(), ref.slug)
}

// permissionByVar fetches the permission named by the {ref} path variable.
func (h *Handlers) permissionByVar(r *http.Request) (Permission, error) {
	ref, err := refVar(r)
	if err != nil {
		return Permission{}, err
	}
	if ref.byID {
		return h.engine.GetPermission(r.Context(), ref.id)
	}
	return h.engine.FindPermissionBySlug(r.Context(), ref.slug)
}

// userGrantOp runs a user-scoped grant mutation shared by the assign, sync,
// revoke and remove handlers.
func (h *Handlers) userGrantOp(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID int64, refs ...Ref) error,
	eventType audit.EventType, message string,
) {
	userID, err := userIDVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	refs, err := parseRefsBody(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := op(r.Context(), userID, refs...); err != nil {
		writeEngineError(w, err)
		return
	}

	_ = audit.LogMutation(r.Context(), h.auditLogger, eventType,
		audit.ResourceTypeUser, strconv.FormatInt(userID, 10), message)
	httputil.WriteNoContent(w)
}

// roleGrantOp runs a role-scoped grant mutation shared by the grant, sync and
// revoke handlers.
func (h *Handlers) roleGrantOp(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, roleRef Ref, refs ...Ref) error,
	eventType audit.EventType, message string,
) {
	ref, err := refVar(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	refs, err := parseRefsBody(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := op(r.Context(), ref, refs...); err != nil {
		writeEngineError(w, err)
		return
	}

	_ = audit.LogMutation(r.Context(), h.auditLogger, eventType,
		audit.ResourceTypeRole, ref.String(), message)
	httputil.WriteNoContent(w)
}
