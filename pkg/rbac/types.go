package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Role is a named grouping of permissions that can be assigned to principals.
type Role struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an atomic capability identified by a stable id and a unique slug.
type Permission struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleUpdate carries a partial update for a role. Nil fields are left unchanged.
type RoleUpdate struct {
	Slug        *string `json:"slug,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// PermissionUpdate carries a partial update for a permission.
type PermissionUpdate struct {
	Slug        *string `json:"slug,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Principal describes the authenticated actor whose grants are being evaluated.
// The engine depends only on this interface, never on a concrete user type.
type Principal interface {
	GetID() int64
}

// PrincipalID is the trivial Principal implementation: a bare user identifier.
type PrincipalID int64

// GetID returns the principal's identifier.
func (p PrincipalID) GetID() int64 { return int64(p) }

// UserRole is a user↔role grant edge.
type UserRole struct {
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
}

// UserPermission is a direct user↔permission grant edge, bypassing roles.
type UserPermission struct {
	UserID       int64 `json:"user_id"`
	PermissionID int64 `json:"permission_id"`
}

// RolePermission is a role↔permission grant edge.
type RolePermission struct {
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
}

// Mode selects how multiple required references combine in an authorization check.
type Mode string

const (
	// ModeAny grants access when at least one reference is satisfied.
	ModeAny Mode = "any"
	// ModeAll grants access only when every reference is satisfied.
	ModeAll Mode = "all"
)

// Reason explains an authorization decision so the transport layer can map it
// to a distinct response (401 vs 403 vs 400).
type Reason string

const (
	ReasonGranted          Reason = "granted"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonForbidden        Reason = "forbidden"
	ReasonInvalidReference Reason = "invalid_reference"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    Reason    `json:"reason"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Err converts a denied decision into the matching sentinel error so callers
// can branch with errors.Is. Allowed decisions yield nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	sentinel := ErrForbidden
	switch d.Reason {
	case ReasonUnauthenticated:
		sentinel = ErrUnauthenticated
	case ReasonInvalidReference:
		sentinel = ErrInvalidReference
	}
	if d.Detail == "" || strings.HasPrefix(d.Detail, sentinel.Error()) {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, d.Detail)
}

// CacheStats reports consistency cache counters since engine creation.
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Invalidations int64   `json:"invalidations"`
	Evictions     int64   `json:"evictions"`
	Entries       int     `json:"entries"`
	HitRate       float64 `json:"hit_rate"`
}
