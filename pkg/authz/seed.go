package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// Well-known permission codes for managing the authorization data itself.
const (
	PermRolesRead         = "roles:read"
	PermRolesManage       = "roles:manage"
	PermPermissionsRead   = "permissions:read"
	PermPermissionsManage = "permissions:manage"
	PermAssignmentsManage = "assignments:manage"
	PermGrantsManage      = "grants:manage"
	PermSuperAdmin        = Wildcard
)

// SystemPermission is one catalog entry seeded at startup.
type SystemPermission struct {
	Code        string
	Name        string
	Category    string
	Description string
}

// SystemPermissions returns the catalog entries every deployment carries.
func SystemPermissions() []SystemPermission {
	return []SystemPermission{
		{Code: PermSuperAdmin, Name: "Super admin", Category: "rbac", Description: "Matches every permission"},
		{Code: PermRolesRead, Name: "Read roles", Category: "rbac", Description: "List and inspect roles"},
		{Code: PermRolesManage, Name: "Manage roles", Category: "rbac", Description: "Create, update and delete roles"},
		{Code: PermPermissionsRead, Name: "Read permissions", Category: "rbac", Description: "List and inspect the permission catalog"},
		{Code: PermPermissionsManage, Name: "Manage permissions", Category: "rbac", Description: "Register and remove catalog permissions"},
		{Code: PermAssignmentsManage, Name: "Manage assignments", Category: "rbac", Description: "Assign and unassign roles"},
		{Code: PermGrantsManage, Name: "Manage grants", Category: "rbac", Description: "Grant and revoke direct permission overrides"},
	}
}

// SystemRole is one protected role seeded at a scope.
type SystemRole struct {
	Name            string
	Slug            string
	Description     string
	Priority        int
	PermissionCodes []string
}

// SystemRoles returns the protected role set seeded for each tenant scope.
func SystemRoles() []SystemRole {
	return []SystemRole{
		{
			Name:            "Administrator",
			Slug:            "administrator",
			Description:     "Full access within the scope",
			Priority:        100,
			PermissionCodes: []string{PermSuperAdmin},
		},
		{
			Name:        "Access Manager",
			Slug:        "access_manager",
			Description: "Manages roles, assignments and grants",
			Priority:    50,
			PermissionCodes: []string{
				PermRolesRead, PermRolesManage,
				PermPermissionsRead,
				PermAssignmentsManage, PermGrantsManage,
			},
		},
		{
			Name:            "Viewer",
			Slug:            "viewer",
			Description:     "Read-only access to authorization data",
			Priority:        10,
			PermissionCodes: []string{PermRolesRead, PermPermissionsRead},
		},
	}
}

// SeedSystemRoles makes sure the well-known permissions exist in the catalog
// and the protected system roles exist at the given scope. Existing entries
// are left untouched, so the seeder is safe to run on every startup.
func SeedSystemRoles(ctx context.Context, catalog *CatalogStore, roles *RoleStore, scope scopes.Scope) error {
	if err := scope.Validate(); err != nil {
		return InvalidOperationError(err.Error())
	}

	codeToID := make(map[string]string)
	for _, sp := range SystemPermissions() {
		perm, err := catalog.GetPermissionByCode(ctx, sp.Code)
		if errors.Is(err, ErrNotFound) {
			perm, err = catalog.CreatePermission(ctx, sp.Code, sp.Name, sp.Category, sp.Description)
		}
		if err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", sp.Code, err)
		}
		codeToID[perm.Code] = perm.ID
	}

	for _, sr := range SystemRoles() {
		_, err := roles.FindRoleBySlug(ctx, sr.Slug, scope.Type, scope.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to look up system role %s: %w", sr.Slug, err)
		}

		var permissionIDs []string
		for _, code := range sr.PermissionCodes {
			permissionIDs = append(permissionIDs, codeToID[code])
		}

		if _, err := roles.createRole(ctx, CreateRoleParams{
			Name:          sr.Name,
			Slug:          sr.Slug,
			Description:   sr.Description,
			ScopeType:     scope.Type,
			ScopeID:       scope.ID,
			PermissionIDs: permissionIDs,
			Priority:      sr.Priority,
		}, true); err != nil {
			return fmt.Errorf("failed to seed system role %s: %w", sr.Slug, err)
		}
	}

	return nil
}
