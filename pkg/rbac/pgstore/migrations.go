package pgstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all snapshot store migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles and permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS aegis_roles (
					id BIGINT PRIMARY KEY,
					slug VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS aegis_permissions (
					id BIGINT PRIMARY KEY,
					slug VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create grant edge tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS aegis_user_roles (
					user_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES aegis_roles(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, role_id)
				);
				CREATE INDEX IF NOT EXISTS idx_aegis_user_roles_role_id ON aegis_user_roles(role_id);

				CREATE TABLE IF NOT EXISTS aegis_user_permissions (
					user_id BIGINT NOT NULL,
					permission_id BIGINT NOT NULL REFERENCES aegis_permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, permission_id)
				);
				CREATE INDEX IF NOT EXISTS idx_aegis_user_permissions_permission_id ON aegis_user_permissions(permission_id);

				CREATE TABLE IF NOT EXISTS aegis_role_permissions (
					role_id BIGINT NOT NULL REFERENCES aegis_roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES aegis_permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);
				CREATE INDEX IF NOT EXISTS idx_aegis_role_permissions_permission_id ON aegis_role_permissions(permission_id);
			`,
		},
	}
}

// RunMigrations applies pending migrations, each in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS aegis_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM aegis_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO aegis_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
