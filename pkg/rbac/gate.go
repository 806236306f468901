package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gate is the boundary consumed by request-handling middleware. It translates
// resolver queries into allow/deny decisions whose reasons the transport layer
// can map to distinct responses: unauthenticated (401), forbidden (403),
// invalid reference (400).
type Gate struct {
	engine   *Engine
	recorder CheckRecorder
}

// CheckRecorder receives the outcome and latency of every gate decision. The
// reason is the Decision reason as a string.
type CheckRecorder interface {
	RecordCheck(reason string, elapsed time.Duration)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithCheckRecorder routes every decision's outcome and latency into the
// given sink.
func WithCheckRecorder(rec CheckRecorder) GateOption {
	return func(g *Gate) {
		g.recorder = rec
	}
}

// NewGate builds a Gate over an engine.
func NewGate(engine *Engine, opts ...GateOption) *Gate {
	g := &Gate{engine: engine}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthorizePermissions checks the requirement's permission references against
// the principal's effective set.
func (g *Gate) AuthorizePermissions(ctx context.Context, principal Principal, req Requirement) Decision {
	return g.authorize(ctx, principal, req, g.engine.HasAnyPermission, g.engine.HasAllPermissions)
}

// AuthorizeRoles checks the requirement's role references against the
// principal's direct memberships.
func (g *Gate) AuthorizeRoles(ctx context.Context, principal Principal, req Requirement) Decision {
	return g.authorize(ctx, principal, req, g.engine.HasAnyRole, g.engine.HasAllRoles)
}

type checkFunc func(ctx context.Context, userID int64, refs ...Ref) (bool, error)

func (g *Gate) authorize(ctx context.Context, principal Principal, req Requirement, any, all checkFunc) Decision {
	now := time.Now()
	decision := g.decide(ctx, principal, req, any, all, now)
	if g.recorder != nil {
		g.recorder.RecordCheck(string(decision.Reason), time.Since(now))
	}
	return decision
}

func (g *Gate) decide(ctx context.Context, principal Principal, req Requirement, any, all checkFunc, now time.Time) Decision {
	if principal == nil {
		return Decision{Reason: ReasonUnauthenticated, Detail: "no principal", CheckedAt: now}
	}
	if len(req.Refs) == 0 {
		// An empty requirement guards nothing.
		return Decision{Allowed: true, Reason: ReasonGranted, CheckedAt: now}
	}

	check := any
	if req.Mode == ModeAll {
		check = all
	}

	ok, err := check(ctx, principal.GetID(), req.Refs...)
	switch {
	case err != nil && errors.Is(err, ErrInvalidReference):
		return Decision{Reason: ReasonInvalidReference, Detail: err.Error(), CheckedAt: now}
	case err != nil:
		return Decision{Reason: ReasonForbidden, Detail: err.Error(), CheckedAt: now}
	case !ok:
		return Decision{
			Reason:    ReasonForbidden,
			Detail:    fmt.Sprintf("missing required grant (%s of %d)", req.Mode, len(req.Refs)),
			CheckedAt: now,
		}
	}
	return Decision{Allowed: true, Reason: ReasonGranted, CheckedAt: now}
}
