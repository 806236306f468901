package rbac

import "errors"

// Sentinel errors returned by the engine. Callers match them with errors.Is;
// the HTTP layer translates them to status codes (404, 409, 400, 401, 403).
var (
	// ErrNotFound indicates the requested role, permission or principal record
	// does not exist.
	ErrNotFound = errors.New("rbac: not found")

	// ErrDuplicateSlug indicates a create or rename would violate slug
	// uniqueness within the entity type.
	ErrDuplicateSlug = errors.New("rbac: duplicate slug")

	// ErrInvalidReference indicates a role/permission token that cannot be
	// resolved: an unknown slug, an empty token, or a malformed reference.
	// Distinct from a false permission check ("lacks permission").
	ErrInvalidReference = errors.New("rbac: invalid reference")

	// ErrUnauthenticated indicates no principal was supplied for a check.
	ErrUnauthenticated = errors.New("rbac: unauthenticated")

	// ErrForbidden indicates an authenticated principal lacks the required grant.
	ErrForbidden = errors.New("rbac: forbidden")
)
