// Package pgstore persists engine snapshots to PostgreSQL. It implements
// rbac.Snapshotter: Save writes the whole snapshot in one transaction and
// Load reads the last saved state, so the engine never observes partial data.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/platinummonkey/aegis/pkg/rbac"
)

// Store is a PostgreSQL-backed snapshot store
type Store struct {
	db *sql.DB
}

// New creates a store over an open database handle
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL, verifies the connection, and applies pending
// migrations.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for health checks
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the last saved snapshot. A fresh store yields an empty snapshot,
// not an error.
func (s *Store) Load(ctx context.Context) (*rbac.Snapshot, error) {
	snap := &rbac.Snapshot{}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, slug, name, description, created_at, updated_at FROM aegis_roles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	for rows.Next() {
		var r rbac.Role
		if err := rows.Scan(&r.ID, &r.Slug, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		snap.Roles = append(snap.Roles, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		"SELECT id, slug, name, description, created_at, updated_at FROM aegis_permissions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		snap.Permissions = append(snap.Permissions, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		"SELECT user_id, role_id FROM aegis_user_roles ORDER BY user_id, role_id")
	if err != nil {
		return nil, fmt.Errorf("failed to load user roles: %w", err)
	}
	for rows.Next() {
		var e rbac.UserRole
		if err := rows.Scan(&e.UserID, &e.RoleID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		snap.UserRoles = append(snap.UserRoles, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate user roles: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		"SELECT user_id, permission_id FROM aegis_user_permissions ORDER BY user_id, permission_id")
	if err != nil {
		return nil, fmt.Errorf("failed to load user permissions: %w", err)
	}
	for rows.Next() {
		var e rbac.UserPermission
		if err := rows.Scan(&e.UserID, &e.PermissionID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user permission: %w", err)
		}
		snap.UserPermissions = append(snap.UserPermissions, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate user permissions: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		"SELECT role_id, permission_id FROM aegis_role_permissions ORDER BY role_id, permission_id")
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	for rows.Next() {
		var e rbac.RolePermission
		if err := rows.Scan(&e.RoleID, &e.PermissionID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		snap.RolePermissions = append(snap.RolePermissions, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate role permissions: %w", err)
	}
	rows.Close()

	return snap, nil
}

// Save replaces the stored state with the snapshot in a single transaction.
// Edge tables are cleared before the entity tables so foreign keys hold at
// every step.
func (s *Store) Save(ctx context.Context, snap *rbac.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"aegis_user_roles",
		"aegis_user_permissions",
		"aegis_role_permissions",
		"aegis_roles",
		"aegis_permissions",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, r := range snap.Roles {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO aegis_roles (id, slug, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)",
			r.ID, r.Slug, r.Name, r.Description, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert role %q: %w", r.Slug, err)
		}
	}
	for _, p := range snap.Permissions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO aegis_permissions (id, slug, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)",
			p.ID, p.Slug, p.Name, p.Description, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert permission %q: %w", p.Slug, err)
		}
	}
	for _, e := range snap.UserRoles {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO aegis_user_roles (user_id, role_id) VALUES ($1, $2)",
			e.UserID, e.RoleID,
		); err != nil {
			return fmt.Errorf("failed to insert user role edge: %w", err)
		}
	}
	for _, e := range snap.UserPermissions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO aegis_user_permissions (user_id, permission_id) VALUES ($1, $2)",
			e.UserID, e.PermissionID,
		); err != nil {
			return fmt.Errorf("failed to insert user permission edge: %w", err)
		}
	}
	for _, e := range snap.RolePermissions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO aegis_role_permissions (role_id, permission_id) VALUES ($1, $2)",
			e.RoleID, e.PermissionID,
		); err != nil {
			return fmt.Errorf("failed to insert role permission edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

var _ rbac.Snapshotter = (*Store)(nil)
