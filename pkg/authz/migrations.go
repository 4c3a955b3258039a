package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all engine migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id TEXT PRIMARY KEY,
					code VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					category VARCHAR(100) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_permissions_category ON permissions(category);
			`,
		},
		{
			Version:     2,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL,
					description TEXT,
					color VARCHAR(32),
					scope_type VARCHAR(50) NOT NULL,
					scope_id VARCHAR(255) NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					priority INT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_roles_slug_scope ON roles(slug, scope_type, scope_id)
					WHERE deleted_at IS NULL;
				CREATE INDEX idx_roles_scope ON roles(scope_type, scope_id);
			`,
		},
		{
			Version:     3,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id TEXT NOT NULL,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX idx_role_permissions_permission_id ON role_permissions(permission_id);
			`,
		},
		{
			Version:     4,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id TEXT PRIMARY KEY,
					user_id VARCHAR(255) NOT NULL,
					role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					scope_type VARCHAR(50) NOT NULL,
					scope_id VARCHAR(255) NOT NULL,
					assigned_by VARCHAR(255),
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					UNIQUE (user_id, role_id, scope_type, scope_id)
				);

				CREATE INDEX idx_role_assignments_user ON role_assignments(user_id);
				CREATE INDEX idx_role_assignments_role ON role_assignments(role_id);
				CREATE INDEX idx_role_assignments_expires_at ON role_assignments(expires_at);
			`,
		},
		{
			Version:     5,
			Description: "Create permission_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_grants (
					id TEXT PRIMARY KEY,
					user_id VARCHAR(255) NOT NULL,
					permission_id TEXT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					scope_type VARCHAR(50) NOT NULL,
					scope_id VARCHAR(255) NOT NULL,
					grant_type VARCHAR(10) NOT NULL,
					granted_by VARCHAR(255),
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					reason TEXT,
					constraints TEXT,
					UNIQUE (user_id, permission_id, scope_type, scope_id)
				);

				CREATE INDEX idx_permission_grants_user ON permission_grants(user_id);
				CREATE INDEX idx_permission_grants_expires_at ON permission_grants(expires_at);
			`,
		},
		{
			Version:     6,
			Description: "Create audit_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_records (
					id TEXT PRIMARY KEY,
					occurred_at TIMESTAMP NOT NULL DEFAULT NOW(),
					action VARCHAR(100) NOT NULL,
					entity_type VARCHAR(50) NOT NULL,
					entity_id VARCHAR(255) NOT NULL,
					actor_user_id VARCHAR(255),
					scope_type VARCHAR(50),
					scope_id VARCHAR(255),
					metadata TEXT
				);

				CREATE INDEX idx_audit_records_entity ON audit_records(entity_type, entity_id);
				CREATE INDEX idx_audit_records_actor ON audit_records(actor_user_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM authz_migrations ORDER BY version")
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
			"INSERT INTO authz_migrations (version, description) VALUES ($1, $2)",
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
