// Package rbac provides the in-memory role-based authorization engine for Aegis.
//
// # Overview
//
// This package implements roles, permissions, and the grant relations between
// them and user principals, together with a consistency cache that keeps
// repeated permission checks cheap without ever serving a stale grant. The
// engine owns all state; callers interact through mutation and query methods
// and never see the internal indexes.
//
// # Architecture
//
// The engine consists of five cooperating parts:
//
//  1. Entity store: roles and permissions, addressable by stable id or unique slug
//  2. Membership graph: user-role, user-permission, and role-permission edges
//  3. Resolver: computes a principal's effective permission set (direct grants
//     unioned with every assigned role's permissions)
//  4. Consistency cache: memoizes resolved sets per principal, invalidated
//     inside the same critical section as the mutation that affects them
//  5. Authorization gate: turns resolver queries into allow/deny decisions
//     with reasons the transport layer maps to 401, 403 or 400
//
// # Entities and References
//
// Roles and permissions carry an auto-assigned int64 id and a unique,
// case-sensitive slug. Either form identifies an entity at the API boundary:
//
//	ref, _ := rbac.ParseRef("edit-posts") // slug
//	ref, _ := rbac.ParseRef("42")         // id
//
// A purely numeric token always parses as an id. Slugs are rejected at
// creation time if purely numeric, so the two namespaces cannot collide.
//
// # Grants
//
// Each relation supports three mutation shapes:
//
//	engine.AssignRoles(ctx, userID, refs...)  // union, keeps existing
//	engine.RemoveRoles(ctx, userID, refs...)  // removes, absent edges ignored
//	engine.SyncRoles(ctx, userID, refs...)    // exact replacement, may be empty
//
// The same triple exists for direct user permissions (GrantPermissions,
// RevokePermissions, SyncPermissions) and for role permissions
// (GrantRolePermissions, RevokeRolePermissions, SyncRolePermissions). A batch
// naming an unknown entity fails with ErrNotFound and applies nothing.
//
// # Checking
//
//	has, err := engine.HasPermission(ctx, userID, rbac.RefBySlug("edit-posts"))
//
// An unknown reference fails with ErrInvalidReference instead of reporting
// false, so "lacks the permission" and "no such permission" stay
// distinguishable. HasAnyPermission, HasAllPermissions and the role
// equivalents combine several references with short-circuit OR and AND.
//
// # Consistency Cache
//
// Resolved permission sets are cached per principal in a TTL-bounded LRU.
// Every mutation that can change a principal's effective set invalidates the
// affected entries before the mutation returns, so a check issued immediately
// after a revocation reflects the revocation. Role-level changes use the
// reverse role-to-users index to invalidate exactly the holders of that role.
// The TTL is a backstop, not the consistency mechanism.
//
//	engine := rbac.NewEngine(rbac.WithCacheTTL(time.Hour), rbac.WithCacheSize(10000))
//	stats := engine.CacheStats() // hits, misses, invalidations, evictions
//
// # HTTP Middleware
//
// The Guard wraps handlers with declarative requirements. A pipe joins
// alternatives, requiring any one of them:
//
//	guard := rbac.NewGuard(rbac.NewGate(engine), auditLogger)
//	router.Handle("/posts",
//		guard.RequirePermission("edit-posts|publish-posts")(postsHandler),
//	).Methods("POST")
//
// Requests without a principal receive 401, principals missing the grant
// receive 403, and requirements naming unknown entities receive 400.
//
// # Persistence
//
// The engine is memory-resident. The Snapshotter interface captures and
// restores the canonical state (entities plus edges, never resolved sets);
// pkg/rbac/pgstore implements it on PostgreSQL.
//
//	snap := engine.Snapshot(ctx)
//	err := store.Save(ctx, snap)
//
// # Concurrency
//
// All methods are safe for concurrent use. Reads take a shared lock and scale
// across goroutines; mutations serialize under an exclusive lock, which is
// also what makes read-your-writes invalidation possible.
package rbac
