package rbac

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/aegis/pkg/audit"
	"github.com/platinummonkey/aegis/pkg/contextkeys"
	"github.com/platinummonkey/aegis/pkg/httputil"
)

// Guard provides route middleware that enforces permission and role
// requirements before a handler runs. Requirements are declared as slug or id
// tokens; a pipe joins alternatives ("edit-posts|publish-posts" passes when
// the principal holds either).
type Guard struct {
	gate  *Gate
	audit audit.Logger
}

// NewGuard creates a guard over the gate. The audit logger may be nil.
func NewGuard(gate *Gate, auditLogger audit.Logger) *Guard {
	return &Guard{gate: gate, audit: auditLogger}
}

// RequirePermission creates middleware that requires the given permission
// token. A pipe-delimited token requires any one of its alternatives.
func (g *Guard) RequirePermission(token string) func(http.Handler) http.Handler {
	return g.permissionMiddleware(token, ModeAny)
}

// RequireAnyPermission creates middleware that passes when the principal holds
// at least one of the listed permissions.
func (g *Guard) RequireAnyPermission(tokens ...string) func(http.Handler) http.Handler {
	return g.permissionMiddleware(strings.Join(tokens, "|"), ModeAny)
}

// RequireAllPermissions creates middleware that requires every listed
// permission.
func (g *Guard) RequireAllPermissions(tokens ...string) func(http.Handler) http.Handler {
	return g.permissionMiddleware(strings.Join(tokens, "|"), ModeAll)
}

// RequireRole creates middleware that requires the given role token. A
// pipe-delimited token requires any one of its alternatives.
func (g *Guard) RequireRole(token string) func(http.Handler) http.Handler {
	return g.roleMiddleware(token, ModeAny)
}

// RequireAllRoles creates middleware that requires every listed role.
func (g *Guard) RequireAllRoles(tokens ...string) func(http.Handler) http.Handler {
	return g.roleMiddleware(strings.Join(tokens, "|"), ModeAll)
}

func (g *Guard) permissionMiddleware(token string, mode Mode) func(http.Handler) http.Handler {
	req, parseErr := ParseRequirement(token)
	req.Mode = mode
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parseErr != nil {
				httputil.WriteBadRequest(w, parseErr.Error())
				return
			}
			decision := g.gate.AuthorizePermissions(r.Context(), principalFromRequest(r), req)
			if !decision.Allowed {
				g.deny(w, r, audit.ResourceTypePermission, token, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) roleMiddleware(token string, mode Mode) func(http.Handler) http.Handler {
	req, parseErr := ParseRequirement(token)
	req.Mode = mode
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parseErr != nil {
				httputil.WriteBadRequest(w, parseErr.Error())
				return
			}
			decision := g.gate.AuthorizeRoles(r.Context(), principalFromRequest(r), req)
			if !decision.Allowed {
				g.deny(w, r, audit.ResourceTypeRole, token, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// deny writes the response matching the decision reason and records an audit
// event for denied and unauthenticated outcomes.
func (g *Guard) deny(w http.ResponseWriter, r *http.Request, resourceType audit.ResourceType, token string, decision Decision) {
	err := decision.Err()
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httputil.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, ErrInvalidReference):
		httputil.WriteBadRequest(w, decision.Detail)
	default:
		httputil.WriteForbidden(w, "insufficient permissions")
	}
	if g.audit != nil {
		event := audit.NewEvent(r.Context(), audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied)
		event.ResourceType = resourceType
		event.ResourceID = token
		event.Method = r.Method
		event.Path = r.URL.Path
		event.Message = decision.Detail
		_ = g.audit.Log(r.Context(), event)
	}
}

// principalFromRequest lifts the context principal id into a Principal. A
// missing principal yields nil, which the gate treats as unauthenticated.
func principalFromRequest(r *http.Request) Principal {
	id, ok := contextkeys.PrincipalID(r.Context())
	if !ok {
		return nil
	}
	return PrincipalID(id)
}
