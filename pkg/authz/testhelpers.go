package authz

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testSchema mirrors the engine migrations in SQLite dialect. The stores use
// portable SQL, so tests run against an in-memory database instead of a
// provisioned Postgres.
const testSchema = `
	CREATE TABLE permissions (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT,
		color TEXT,
		scope_type TEXT NOT NULL,
		scope_id TEXT NOT NULL DEFAULT '',
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		priority INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	);

	CREATE UNIQUE INDEX idx_roles_slug_scope ON roles(slug, scope_type, scope_id)
		WHERE deleted_at IS NULL;

	CREATE TABLE role_permissions (
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id TEXT NOT NULL,
		PRIMARY KEY (role_id, permission_id)
	);

	CREATE TABLE role_assignments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		scope_type TEXT NOT NULL,
		scope_id TEXT NOT NULL,
		assigned_by TEXT,
		assigned_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP,
		UNIQUE (user_id, role_id, scope_type, scope_id)
	);

	CREATE TABLE permission_grants (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		permission_id TEXT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		scope_type TEXT NOT NULL,
		scope_id TEXT NOT NULL,
		grant_type TEXT NOT NULL,
		granted_by TEXT,
		granted_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP,
		reason TEXT,
		constraints TEXT,
		UNIQUE (user_id, permission_id, scope_type, scope_id)
	);

	CREATE TABLE audit_records (
		id TEXT PRIMARY KEY,
		occurred_at TIMESTAMP NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		actor_user_id TEXT,
		scope_type TEXT,
		scope_id TEXT,
		metadata TEXT
	);
`

// NewTestDB opens an in-memory SQLite database with the engine schema
// applied. The pool is pinned to one connection so every statement sees the
// same in-memory database.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(testSchema); err != nil {
		db.Close()
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
