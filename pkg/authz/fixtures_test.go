package authz

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// stores bundles the four persistence layers over one test database.
type stores struct {
	db          *sql.DB
	catalog     *CatalogStore
	roles       *RoleStore
	assignments *AssignmentStore
	grants      *GrantStore
}

func newStores(t *testing.T) *stores {
	t.Helper()
	db := NewTestDB(t)
	return &stores{
		db:          db,
		catalog:     NewCatalogStore(db),
		roles:       NewRoleStore(db),
		assignments: NewAssignmentStore(db),
		grants:      NewGrantStore(db),
	}
}

func mustPermission(t *testing.T, s *stores, code string) *Permission {
	t.Helper()
	perm, err := s.catalog.CreatePermission(context.Background(), code, "Permission "+code, "test", "")
	require.NoError(t, err)
	return perm
}

func mustRole(t *testing.T, s *stores, name string, scope scopes.Scope, permissionIDs ...string) *Role {
	t.Helper()
	role, err := s.roles.CreateRole(context.Background(), CreateRoleParams{
		Name:          name,
		ScopeType:     scope.Type,
		ScopeID:       scope.ID,
		PermissionIDs: permissionIDs,
	})
	require.NoError(t, err)
	return role
}

func mustAssign(t *testing.T, s *stores, userID, roleID string, scope scopes.Scope, expiresAt *time.Time) *RoleAssignment {
	t.Helper()
	assignment, err := s.assignments.Assign(context.Background(), userID, roleID, scope, "fixture", expiresAt)
	require.NoError(t, err)
	return assignment
}

func mustGrant(t *testing.T, s *stores, userID, permissionID string, scope scopes.Scope, grantType GrantType) *PermissionGrant {
	t.Helper()
	grant, err := s.grants.Grant(context.Background(), GrantParams{
		UserID:       userID,
		PermissionID: permissionID,
		ScopeType:    scope.Type,
		ScopeID:      scope.ID,
		GrantType:    grantType,
	})
	require.NoError(t, err)
	return grant
}

func timePtr(t time.Time) *time.Time { return &t }

// orgChain wires TEAM:t1 -> DEPARTMENT:d1 -> COMPANY:c1 -> ORGANIZATION:org1
// into a fresh directory and returns it with the four scopes, leaf first.
func orgChain() (*scopes.MemoryDirectory, []scopes.Scope) {
	team := scopes.Scope{Type: scopes.TypeTeam, ID: "t1"}
	dept := scopes.Scope{Type: scopes.TypeDepartment, ID: "d1"}
	company := scopes.Scope{Type: scopes.TypeCompany, ID: "c1"}
	org := scopes.Scope{Type: scopes.TypeOrganization, ID: "org1"}

	dir := scopes.NewMemoryDirectory()
	dir.SetParent(team, dept)
	dir.SetParent(dept, company)
	dir.SetParent(company, org)

	return dir, []scopes.Scope{team, dept, company, org}
}
