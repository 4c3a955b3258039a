package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// GrantStore persists direct per-user permission overrides.
type GrantStore struct {
	db *sql.DB
}

// NewGrantStore creates a new grant store.
func NewGrantStore(db *sql.DB) *GrantStore {
	return &GrantStore{db: db}
}

// GrantParams carries the inputs for creating or replacing a grant.
type GrantParams struct {
	UserID       string      `json:"user_id"`
	PermissionID string      `json:"permission_id"`
	ScopeType    scopes.Type `json:"scope_type"`
	ScopeID      string      `json:"scope_id"`
	GrantType    GrantType   `json:"grant_type,omitempty"`
	GrantedBy    string      `json:"granted_by,omitempty"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Constraints  string      `json:"constraints,omitempty"`
}

// Grant upserts a direct permission override. A second grant for the same
// (user, permission, scope) key replaces the first, refreshing granted_at.
func (s *GrantStore) Grant(ctx context.Context, p GrantParams) (*PermissionGrant, error) {
	scope := scopes.Scope{Type: p.ScopeType, ID: p.ScopeID}
	if err := scope.Validate(); err != nil {
		return nil, InvalidOperationError(err.Error())
	}
	if p.GrantType == "" {
		p.GrantType = GrantAllow
	}
	if p.GrantType != GrantAllow && p.GrantType != GrantDeny {
		return nil, InvalidOperationError(fmt.Sprintf("unknown grant type %q", p.GrantType))
	}

	var code string
	err := s.db.QueryRowContext(ctx, `SELECT code FROM permissions WHERE id = $1`, p.PermissionID).Scan(&code)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("permission", p.PermissionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check permission: %w", err)
	}

	grant := &PermissionGrant{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		PermissionID:   p.PermissionID,
		ScopeType:      p.ScopeType,
		ScopeID:        p.ScopeID,
		GrantType:      p.GrantType,
		GrantedBy:      p.GrantedBy,
		GrantedAt:      time.Now().UTC(),
		ExpiresAt:      p.ExpiresAt,
		Reason:         p.Reason,
		Constraints:    p.Constraints,
		PermissionCode: code,
	}

	// On the replace path the conflict target keeps the existing row's id,
	// so the persisted id must be read back rather than assumed.
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO permission_grants (id, user_id, permission_id, scope_type, scope_id,
			grant_type, granted_by, granted_at, expires_at, reason, constraints)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, permission_id, scope_type, scope_id)
		DO UPDATE SET grant_type = EXCLUDED.grant_type,
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at,
			reason = EXCLUDED.reason,
			constraints = EXCLUDED.constraints
		RETURNING id
	`, grant.ID, grant.UserID, grant.PermissionID, grant.ScopeType, grant.ScopeID,
		grant.GrantType, nullString(grant.GrantedBy), grant.GrantedAt, grant.ExpiresAt,
		nullString(grant.Reason), nullString(grant.Constraints)).Scan(&grant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}

	return grant, nil
}

// Deny is a convenience for Grant with GrantDeny.
func (s *GrantStore) Deny(ctx context.Context, p GrantParams) (*PermissionGrant, error) {
	p.GrantType = GrantDeny
	return s.Grant(ctx, p)
}

// Revoke removes a grant by its unique key.
func (s *GrantStore) Revoke(ctx context.Context, userID, permissionID string, scope scopes.Scope) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM permission_grants
		WHERE user_id = $1 AND permission_id = $2 AND scope_type = $3 AND scope_id = $4
	`, userID, permissionID, scope.Type, scope.ID)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return NotFoundError("grant", userID+"/"+permissionID)
	}

	return nil
}

// GetUserGrants returns the user's unexpired grants, optionally restricted
// to one scope.
func (s *GrantStore) GetUserGrants(ctx context.Context, userID string, scope *scopes.Scope) ([]PermissionGrant, error) {
	query := `
		SELECT g.id, g.user_id, g.permission_id, g.scope_type, g.scope_id,
			g.grant_type, g.granted_by, g.granted_at, g.expires_at, g.reason, g.constraints,
			p.code
		FROM permission_grants g
		JOIN permissions p ON p.id = g.permission_id
		WHERE g.user_id = $1
		  AND (g.expires_at IS NULL OR g.expires_at > CURRENT_TIMESTAMP)
	`
	args := []interface{}{userID}
	if scope != nil {
		query += ` AND g.scope_type = $2 AND g.scope_id = $3`
		args = append(args, scope.Type, scope.ID)
	}
	query += ` ORDER BY g.granted_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user grants: %w", err)
	}
	defer rows.Close()

	var grants []PermissionGrant
	for rows.Next() {
		var g PermissionGrant
		var grantedBy, reason, constraints sql.NullString
		var expiresAt sql.NullTime

		err := rows.Scan(&g.ID, &g.UserID, &g.PermissionID, &g.ScopeType, &g.ScopeID,
			&g.GrantType, &grantedBy, &g.GrantedAt, &expiresAt, &reason, &constraints,
			&g.PermissionCode)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}

		g.GrantedBy = grantedBy.String
		g.Reason = reason.String
		g.Constraints = constraints.String
		if expiresAt.Valid {
			t := expiresAt.Time
			g.ExpiresAt = &t
		}

		grants = append(grants, g)
	}

	return grants, rows.Err()
}

// SweepExpired hard-deletes grants whose expiry is older than the retention
// window.
func (s *GrantStore) SweepExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM permission_grants WHERE expires_at IS NOT NULL AND expires_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired grants: %w", err)
	}
	return result.RowsAffected()
}
