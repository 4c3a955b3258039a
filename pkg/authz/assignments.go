package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// AssignmentStore persists user-role assignments.
type AssignmentStore struct {
	db *sql.DB
}

// NewAssignmentStore creates a new assignment store.
func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

// Assign binds a user to a role at one concrete scope. Re-assigning the same
// key is idempotent, except that a supplied expiry updates the existing row.
func (s *AssignmentStore) Assign(ctx context.Context, userID, roleID string, scope scopes.Scope, assignedBy string, expiresAt *time.Time) (*RoleAssignment, error) {
	if err := scope.Validate(); err != nil {
		return nil, InvalidOperationError(err.Error())
	}

	var roleName, roleSlug string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, slug FROM roles WHERE id = $1 AND deleted_at IS NULL
	`, roleID).Scan(&roleName, &roleSlug)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("role", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}

	existing := &RoleAssignment{}
	var expires sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT id, assigned_at, expires_at
		FROM role_assignments
		WHERE user_id = $1 AND role_id = $2 AND scope_type = $3 AND scope_id = $4
	`, userID, roleID, scope.Type, scope.ID).Scan(&existing.ID, &existing.AssignedAt, &expires)
	switch {
	case err == nil:
		if expiresAt != nil {
			if _, err := s.db.ExecContext(ctx, `
				UPDATE role_assignments SET expires_at = $1 WHERE id = $2
			`, expiresAt, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to refresh assignment expiry: %w", err)
			}
			existing.ExpiresAt = expiresAt
		} else if expires.Valid {
			t := expires.Time
			existing.ExpiresAt = &t
		}
		existing.UserID = userID
		existing.RoleID = roleID
		existing.ScopeType = scope.Type
		existing.ScopeID = scope.ID
		existing.RoleName = roleName
		existing.RoleSlug = roleSlug
		return existing, nil
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("failed to check assignment: %w", err)
	}

	assignment := &RoleAssignment{
		ID:         uuid.NewString(),
		UserID:     userID,
		RoleID:     roleID,
		ScopeType:  scope.Type,
		ScopeID:    scope.ID,
		AssignedBy: assignedBy,
		AssignedAt: time.Now().UTC(),
		ExpiresAt:  expiresAt,
		RoleName:   roleName,
		RoleSlug:   roleSlug,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO role_assignments (id, user_id, role_id, scope_type, scope_id, assigned_by, assigned_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, assignment.ID, assignment.UserID, assignment.RoleID, assignment.ScopeType,
		assignment.ScopeID, nullString(assignment.AssignedBy), assignment.AssignedAt, assignment.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	return assignment, nil
}

// Unassign removes a user-role binding at one scope.
func (s *AssignmentStore) Unassign(ctx context.Context, userID, roleID string, scope scopes.Scope) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM role_assignments
		WHERE user_id = $1 AND role_id = $2 AND scope_type = $3 AND scope_id = $4
	`, userID, roleID, scope.Type, scope.ID)
	if err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return NotFoundError("assignment", userID+"/"+roleID)
	}

	return nil
}

// GetUserAssignments returns the user's assignments that are unexpired and
// whose role is not soft-deleted. A zero-valued scope returns assignments at
// every scope.
func (s *AssignmentStore) GetUserAssignments(ctx context.Context, userID string, scope *scopes.Scope) ([]RoleAssignment, error) {
	query := `
		SELECT ra.id, ra.user_id, ra.role_id, ra.scope_type, ra.scope_id,
			ra.assigned_by, ra.assigned_at, ra.expires_at, r.name, r.slug
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id AND r.deleted_at IS NULL
		WHERE ra.user_id = $1
		  AND (ra.expires_at IS NULL OR ra.expires_at > CURRENT_TIMESTAMP)
	`
	args := []interface{}{userID}
	if scope != nil {
		query += ` AND ra.scope_type = $2 AND ra.scope_id = $3`
		args = append(args, scope.Type, scope.ID)
	}
	query += ` ORDER BY ra.assigned_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		var assignedBy sql.NullString
		var expiresAt sql.NullTime

		err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.ScopeType, &a.ScopeID,
			&assignedBy, &a.AssignedAt, &expiresAt, &a.RoleName, &a.RoleSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		a.AssignedBy = assignedBy.String
		if expiresAt.Valid {
			t := expiresAt.Time
			a.ExpiresAt = &t
		}

		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

// GetUserPermissionCodes returns the distinct permission codes contributed
// by the user's active role assignments at exactly the given scope. Dangling
// role-permission links drop out of the join.
func (s *AssignmentStore) GetUserPermissionCodes(ctx context.Context, userID string, scope scopes.Scope) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.code
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id AND r.deleted_at IS NULL
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ra.user_id = $1 AND ra.scope_type = $2 AND ra.scope_id = $3
		  AND (ra.expires_at IS NULL OR ra.expires_at > CURRENT_TIMESTAMP)
	`, userID, scope.Type, scope.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permission codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan permission code: %w", err)
		}
		codes = append(codes, code)
	}

	return codes, rows.Err()
}

// ListRoleUsers returns the distinct users currently assigned a role at any
// scope, regardless of expiry. Used to invalidate caches when the role
// itself mutates.
func (s *AssignmentStore) ListRoleUsers(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM role_assignments WHERE role_id = $1
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, userID)
	}

	return users, rows.Err()
}

// SweepExpired hard-deletes assignments whose expiry is older than the
// retention window. The resolver never needs this; it is an ops concern.
func (s *AssignmentStore) SweepExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM role_assignments WHERE expires_at IS NOT NULL AND expires_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired assignments: %w", err)
	}
	return result.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
