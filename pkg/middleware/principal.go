// Package middleware provides the principal-provider collaborator: it resolves
// the authenticated actor for a request and places its id in the context for
// the authorization gate to consume. Authentication itself (tokens, sessions)
// is outside this engine; any resolver can be plugged in.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/aegis/pkg/contextkeys"
)

// PrincipalResolver resolves the principal id for a request. ok is false when
// the request carries no authenticated principal.
type PrincipalResolver interface {
	ResolvePrincipal(r *http.Request) (userID int64, ok bool)
}

// PrincipalResolverFunc adapts a function to the PrincipalResolver interface.
type PrincipalResolverFunc func(r *http.Request) (int64, bool)

// ResolvePrincipal calls the wrapped function.
func (f PrincipalResolverFunc) ResolvePrincipal(r *http.Request) (int64, bool) {
	return f(r)
}

// PrincipalMiddleware extracts the principal and stores it in the request
// context. Requests without a principal pass through unauthenticated; the
// guard middleware decides whether that is acceptable per route.
type PrincipalMiddleware struct {
	resolver PrincipalResolver
}

// NewPrincipalMiddleware creates a principal middleware with the given resolver.
func NewPrincipalMiddleware(resolver PrincipalResolver) *PrincipalMiddleware {
	return &PrincipalMiddleware{resolver: resolver}
}

// Handler wraps an HTTP handler with principal resolution.
func (m *PrincipalMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := m.resolver.ResolvePrincipal(r); ok {
			r = r.WithContext(contextkeys.WithPrincipalID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// HeaderPrincipalResolver reads the principal id from a trusted request
// header, the shape used behind an authenticating reverse proxy.
type HeaderPrincipalResolver struct {
	Header string
}

// DefaultPrincipalHeader is the header consulted when none is configured.
const DefaultPrincipalHeader = "X-Principal-ID"

// ResolvePrincipal parses the configured header as an int64 user id.
func (h HeaderPrincipalResolver) ResolvePrincipal(r *http.Request) (int64, bool) {
	header := h.Header
	if header == "" {
		header = DefaultPrincipalHeader
	}
	raw := r.Header.Get(header)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
