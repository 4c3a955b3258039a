package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CatalogStore persists the permission catalog.
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore creates a new catalog store.
func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// CreatePermission adds a new permission definition. The code must be a
// well-formed "resource:action" string (wildcard forms included) and must
// not already exist.
func (s *CatalogStore) CreatePermission(ctx context.Context, code, name, category, description string) (*Permission, error) {
	if !ValidPermissionCode(code) {
		return nil, InvalidOperationError(fmt.Sprintf("malformed permission code %q", code))
	}
	if name == "" || category == "" {
		return nil, InvalidOperationError("permission name and category are required")
	}

	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM permissions WHERE code = $1`, code).Scan(&existing)
	if err == nil {
		return nil, ConflictError("permission code", code)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check permission code: %w", err)
	}

	now := time.Now().UTC()
	perm := &Permission{
		ID:          uuid.NewString(),
		Code:        code,
		Name:        name,
		Description: description,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO permissions (id, code, name, description, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, perm.ID, perm.Code, perm.Name, perm.Description, perm.Category, perm.CreatedAt, perm.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}

	return perm, nil
}

// ListPermissions returns all permissions, optionally filtered by category.
func (s *CatalogStore) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	query := `
		SELECT id, code, name, description, category, created_at, updated_at
		FROM permissions
	`
	var args []interface{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY code ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, *perm)
	}

	return perms, rows.Err()
}

// GetPermission retrieves a permission by ID.
func (s *CatalogStore) GetPermission(ctx context.Context, id string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, description, category, created_at, updated_at
		FROM permissions
		WHERE id = $1
	`, id)

	perm, err := scanPermission(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("permission", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return perm, nil
}

// GetPermissionByCode retrieves a permission by its code.
func (s *CatalogStore) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, description, category, created_at, updated_at
		FROM permissions
		WHERE code = $1
	`, code)

	perm, err := scanPermission(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("permission", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return perm, nil
}

// DeletePermission removes a permission definition. References left behind
// on roles or grants become dangling; the resolver treats them as no-ops.
func (s *CatalogStore) DeletePermission(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return NotFoundError("permission", id)
	}

	return nil
}

// scanPermission scans a permission from a database row.
func scanPermission(scanner interface {
	Scan(dest ...interface{}) error
}) (*Permission, error) {
	var perm Permission
	var description sql.NullString

	err := scanner.Scan(
		&perm.ID,
		&perm.Code,
		&perm.Name,
		&description,
		&perm.Category,
		&perm.CreatedAt,
		&perm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	perm.Description = description.String
	return &perm, nil
}
