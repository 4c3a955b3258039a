package authz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// RoleStore persists roles and their permission sets.
type RoleStore struct {
	db *sql.DB
}

// NewRoleStore creates a new role store.
func NewRoleStore(db *sql.DB) *RoleStore {
	return &RoleStore{db: db}
}

// CreateRoleParams carries the inputs for role creation.
type CreateRoleParams struct {
	Name          string      `json:"name"`
	Slug          string      `json:"slug,omitempty"`
	Description   string      `json:"description,omitempty"`
	Color         string      `json:"color,omitempty"`
	ScopeType     scopes.Type `json:"scope_type"`
	ScopeID       string      `json:"scope_id,omitempty"`
	PermissionIDs []string    `json:"permission_ids,omitempty"`
	Priority      int         `json:"priority,omitempty"`
	IsDefault     bool        `json:"is_default,omitempty"`
}

// NormalizeSlug lowercases a name and collapses every non-alphanumeric run
// into a single underscore.
func NormalizeSlug(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// CreateRole creates a custom role. The slug defaults to the normalized
// name and must be unique among non-deleted roles in the same
// (scopeType, scopeId). Newly created roles are never system roles.
func (s *RoleStore) CreateRole(ctx context.Context, p CreateRoleParams) (*Role, error) {
	return s.createRole(ctx, p, false)
}

func (s *RoleStore) createRole(ctx context.Context, p CreateRoleParams, isSystem bool) (*Role, error) {
	if p.Name == "" {
		return nil, InvalidOperationError("role name is required")
	}
	if !p.ScopeType.Valid() {
		return nil, InvalidOperationError(fmt.Sprintf("unknown scope type %q", p.ScopeType))
	}

	slug := p.Slug
	if slug == "" {
		slug = NormalizeSlug(p.Name)
	}

	var existing string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM roles
		WHERE slug = $1 AND scope_type = $2 AND scope_id = $3 AND deleted_at IS NULL
	`, slug, p.ScopeType, p.ScopeID).Scan(&existing)
	if err == nil {
		return nil, ConflictError("role slug", slug)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check role slug: %w", err)
	}

	now := time.Now().UTC()
	role := &Role{
		ID:          uuid.NewString(),
		Name:        p.Name,
		Slug:        slug,
		Description: p.Description,
		Color:       p.Color,
		ScopeType:   p.ScopeType,
		ScopeID:     p.ScopeID,
		IsSystem:    isSystem,
		IsDefault:   p.IsDefault,
		Priority:    p.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO roles (id, name, slug, description, color, scope_type, scope_id,
			is_system, is_default, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, role.ID, role.Name, role.Slug, role.Description, role.Color, role.ScopeType,
		role.ScopeID, role.IsSystem, role.IsDefault, role.Priority, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	for _, permID := range p.PermissionIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		`, role.ID, permID)
		if err != nil {
			return nil, fmt.Errorf("failed to link permission %s: %w", permID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role creation: %w", err)
	}

	role.Permissions, err = s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}

	return role, nil
}

// GetRole retrieves a role by ID. Soft-deleted roles are treated as missing.
func (s *RoleStore) GetRole(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, color, scope_type, scope_id,
			is_system, is_default, priority, created_at, updated_at, deleted_at
		FROM roles
		WHERE id = $1 AND deleted_at IS NULL
	`, id)

	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("role", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Permissions, err = s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}

	return role, nil
}

// FindRoleBySlug retrieves a non-deleted role by slug within one scope.
func (s *RoleStore) FindRoleBySlug(ctx context.Context, slug string, scopeType scopes.Type, scopeID string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, color, scope_type, scope_id,
			is_system, is_default, priority, created_at, updated_at, deleted_at
		FROM roles
		WHERE slug = $1 AND scope_type = $2 AND scope_id = $3 AND deleted_at IS NULL
	`, slug, scopeType, scopeID)

	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("role", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find role by slug: %w", err)
	}

	role.Permissions, err = s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}

	return role, nil
}

// ListRoles returns all non-deleted roles at the given scope, ordered by
// priority then name.
func (s *RoleStore) ListRoles(ctx context.Context, scopeType scopes.Type, scopeID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, color, scope_type, scope_id,
			is_system, is_default, priority, created_at, updated_at, deleted_at
		FROM roles
		WHERE scope_type = $1 AND scope_id = $2 AND deleted_at IS NULL
		ORDER BY priority DESC, name ASC
	`, scopeType, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	return roles, rows.Err()
}

// UpdateRole applies a patch to a role. System roles reject name changes;
// description, color, priority, and is_default stay mutable for them.
func (s *RoleStore) UpdateRole(ctx context.Context, id string, patch RolePatch) (*Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}

	if role.IsSystem && patch.Name != nil {
		return nil, InvalidOperationError("cannot rename a system role")
	}

	if patch.Name != nil {
		role.Name = *patch.Name
	}
	if patch.Description != nil {
		role.Description = *patch.Description
	}
	if patch.Color != nil {
		role.Color = *patch.Color
	}
	if patch.Priority != nil {
		role.Priority = *patch.Priority
	}
	if patch.IsDefault != nil {
		role.IsDefault = *patch.IsDefault
	}
	role.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE roles
		SET name = $1, description = $2, color = $3, priority = $4, is_default = $5, updated_at = $6
		WHERE id = $7 AND deleted_at IS NULL
	`, role.Name, role.Description, role.Color, role.Priority, role.IsDefault, role.UpdatedAt, role.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	return role, nil
}

// SetRolePermissions replaces the role's entire permission set in one
// transaction. This is a full replace, not an incremental diff.
func (s *RoleStore) SetRolePermissions(ctx context.Context, id string, permissionIDs []string) error {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return InvalidOperationError("cannot modify permissions of a system role")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		`, id, permID); err != nil {
			return fmt.Errorf("failed to link permission %s: %w", permID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE roles SET updated_at = $1 WHERE id = $2
	`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to touch role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission replace: %w", err)
	}

	return nil
}

// DeleteRole soft-deletes a role. System roles cannot be deleted.
func (s *RoleStore) DeleteRole(ctx context.Context, id string) error {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return InvalidOperationError("cannot delete a system role")
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE roles SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	return nil
}

// RestoreRole undoes a soft delete. Fails with Conflict if another
// non-deleted role has since taken the slug in the same scope.
func (s *RoleStore) RestoreRole(ctx context.Context, id string) (*Role, error) {
	role, err := s.getRoleIncludingDeleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.DeletedAt == nil {
		return nil, InvalidOperationError("role is not deleted")
	}

	var existing string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM roles
		WHERE slug = $1 AND scope_type = $2 AND scope_id = $3 AND deleted_at IS NULL
	`, role.Slug, role.ScopeType, role.ScopeID).Scan(&existing)
	if err == nil {
		return nil, ConflictError("role slug", role.Slug)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check role slug: %w", err)
	}

	role.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE roles SET deleted_at = NULL, updated_at = $1 WHERE id = $2
	`, role.UpdatedAt, role.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore role: %w", err)
	}
	role.DeletedAt = nil

	role.Permissions, err = s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}

	return role, nil
}

// getRoleIncludingDeleted fetches a role regardless of its deletion state.
// Restore is the only path that needs to see soft-deleted rows.
func (s *RoleStore) getRoleIncludingDeleted(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, color, scope_type, scope_id,
			is_system, is_default, priority, created_at, updated_at, deleted_at
		FROM roles
		WHERE id = $1
	`, id)

	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("role", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// GetRolePermissions returns the permissions currently linked to a role.
// Links to deleted catalog entries simply produce no rows.
func (s *RoleStore) GetRolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.code, p.name, p.description, p.category, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.code ASC
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		perms = append(perms, *perm)
	}

	return perms, rows.Err()
}

// scanRole scans a role from a database row.
func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var description, color sql.NullString
	var deletedAt sql.NullTime

	err := scanner.Scan(
		&role.ID,
		&role.Name,
		&role.Slug,
		&description,
		&color,
		&role.ScopeType,
		&role.ScopeID,
		&role.IsSystem,
		&role.IsDefault,
		&role.Priority,
		&role.CreatedAt,
		&role.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	role.Description = description.String
	role.Color = color.String
	if deletedAt.Valid {
		t := deletedAt.Time
		role.DeletedAt = &t
	}

	return &role, nil
}
