package scopes

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresDirectory resolves the hierarchy from two tables maintained by the
// surrounding tenancy system:
//
//	scope_nodes(scope_type, scope_id, parent_type, parent_id)
//	directory_users(user_id, organization_id)
//
// The engine treats both as read-only.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a directory backed by the given database.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// ParentOf implements Directory.
func (d *PostgresDirectory) ParentOf(ctx context.Context, scope Scope) (Scope, bool, error) {
	query := `
		SELECT parent_type, parent_id
		FROM scope_nodes
		WHERE scope_type = $1 AND scope_id = $2
	`

	var parentType, parentID sql.NullString
	err := d.db.QueryRowContext(ctx, query, scope.Type, scope.ID).Scan(&parentType, &parentID)
	if err == sql.ErrNoRows {
		return Scope{}, false, nil
	}
	if err != nil {
		return Scope{}, false, fmt.Errorf("failed to look up parent of %s: %w", scope, err)
	}
	if !parentType.Valid || !parentID.Valid || parentID.String == "" {
		return Scope{}, false, nil
	}

	return Scope{Type: Type(parentType.String), ID: parentID.String}, true, nil
}

// IsDescendant implements Directory by walking the parent chain of target.
func (d *PostgresDirectory) IsDescendant(ctx context.Context, ancestor, target Scope) (bool, error) {
	if ancestor == target {
		return true, nil
	}

	current := target
	for i := 0; i < MaxDepth; i++ {
		parent, ok, err := d.ParentOf(ctx, current)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if parent == ancestor {
			return true, nil
		}
		current = parent
	}

	return false, nil
}

// CanManageUser implements Directory: users sharing an organization are
// mutually manageable.
func (d *PostgresDirectory) CanManageUser(ctx context.Context, actorUserID, targetUserID string) (bool, error) {
	query := `SELECT organization_id FROM directory_users WHERE user_id = $1`

	var actorOrg string
	err := d.db.QueryRowContext(ctx, query, actorUserID).Scan(&actorOrg)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up actor %s: %w", actorUserID, err)
	}

	var targetOrg string
	err = d.db.QueryRowContext(ctx, query, targetUserID).Scan(&targetOrg)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up user %s: %w", targetUserID, err)
	}

	return actorOrg == targetOrg, nil
}
