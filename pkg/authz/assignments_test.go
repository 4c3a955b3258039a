package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

var teamScope = scopes.Scope{Type: scopes.TypeTeam, ID: "t1"}

func TestAssignmentStore_Assign(t *testing.T) {
	s := newStores(t)
	role := mustRole(t, s, "Support Agent", teamScope)

	assignment, err := s.assignments.Assign(context.Background(), "u1", role.ID, teamScope, "admin", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, assignment.ID)
	assert.Equal(t, "u1", assignment.UserID)
	assert.Equal(t, role.ID, assignment.RoleID)
	assert.Equal(t, "admin", assignment.AssignedBy)
	assert.Equal(t, "Support Agent", assignment.RoleName)
	assert.Equal(t, "support_agent", assignment.RoleSlug)
	assert.Nil(t, assignment.ExpiresAt)
}

func TestAssignmentStore_Assign_MissingRole(t *testing.T) {
	s := newStores(t)

	_, err := s.assignments.Assign(context.Background(), "u1", "missing", teamScope, "", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignmentStore_Assign_DeletedRole(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	role := mustRole(t, s, "Support Agent", teamScope)
	require.NoError(t, s.roles.DeleteRole(ctx, role.ID))

	_, err := s.assignments.Assign(ctx, "u1", role.ID, teamScope, "", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignmentStore_Assign_InvalidScope(t *testing.T) {
	s := newStores(t)
	role := mustRole(t, s, "Support Agent", teamScope)

	_, err := s.assignments.Assign(context.Background(), "u1", role.ID, scopes.Scope{Type: "PLANET", ID: "x"}, "", nil)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = s.assignments.Assign(context.Background(), "u1", role.ID, scopes.Scope{Type: scopes.TypeTeam}, "", nil)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestAssignmentStore_Assign_Idempotent(t *testing.T) {
	s := newStores(t)
	role := mustRole(t, s, "Support Agent", teamScope)

	first := mustAssign(t, s, "u1", role.ID, teamScope, nil)
	second := mustAssign(t, s, "u1", role.ID, teamScope, nil)

	assert.Equal(t, first.ID, second.ID)

	all, err := s.assignments.GetUserAssignments(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAssignmentStore_Assign_RefreshesExpiry(t *testing.T) {
	s := newStores(t)
	role := mustRole(t, s, "Support Agent", teamScope)

	first := mustAssign(t, s, "u1", role.ID, teamScope, timePtr(time.Now().UTC().Add(time.Hour)))

	later := time.Now().UTC().Add(48 * time.Hour)
	second := mustAssign(t, s, "u1", role.ID, teamScope, &later)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.ExpiresAt)
	assert.WithinDuration(t, later, *second.ExpiresAt, time.Second)

	// Re-assigning without an expiry keeps the stored one.
	third := mustAssign(t, s, "u1", role.ID, teamScope, nil)
	require.NotNil(t, third.ExpiresAt)
	assert.WithinDuration(t, later, *third.ExpiresAt, time.Second)
}

func TestAssignmentStore_Unassign(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	role := mustRole(t, s, "Support Agent", teamScope)
	mustAssign(t, s, "u1", role.ID, teamScope, nil)

	require.NoError(t, s.assignments.Unassign(ctx, "u1", role.ID, teamScope))

	all, err := s.assignments.GetUserAssignments(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, all)

	err = s.assignments.Unassign(ctx, "u1", role.ID, teamScope)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignmentStore_GetUserAssignments(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()

	agent := mustRole(t, s, "Support Agent", teamScope)
	analyst := mustRole(t, s, "Analyst", companyScope)
	expired := mustRole(t, s, "Temp", teamScope)
	deleted := mustRole(t, s, "Legacy", teamScope)

	mustAssign(t, s, "u1", agent.ID, teamScope, nil)
	mustAssign(t, s, "u1", analyst.ID, companyScope, nil)
	mustAssign(t, s, "u1", expired.ID, teamScope, timePtr(time.Now().UTC().Add(-time.Hour)))
	mustAssign(t, s, "u1", deleted.ID, teamScope, nil)
	require.NoError(t, s.roles.DeleteRole(ctx, deleted.ID))

	all, err := s.assignments.GetUserAssignments(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	atTeam, err := s.assignments.GetUserAssignments(ctx, "u1", &teamScope)
	require.NoError(t, err)
	require.Len(t, atTeam, 1)
	assert.Equal(t, agent.ID, atTeam[0].RoleID)
}

func TestAssignmentStore_GetUserPermissionCodes(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()

	read := mustPermission(t, s, "transactions:read")
	write := mustPermission(t, s, "transactions:write")

	agent := mustRole(t, s, "Support Agent", teamScope, read.ID)
	senior := mustRole(t, s, "Senior Agent", teamScope, read.ID, write.ID)
	mustAssign(t, s, "u1", agent.ID, teamScope, nil)
	mustAssign(t, s, "u1", senior.ID, teamScope, nil)

	codes, err := s.assignments.GetUserPermissionCodes(ctx, "u1", teamScope)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"transactions:read", "transactions:write"}, codes)

	// Other scopes contribute nothing here; inheritance is the resolver's job.
	codes, err = s.assignments.GetUserPermissionCodes(ctx, "u1", companyScope)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestAssignmentStore_GetUserPermissionCodes_ExpiredExcluded(t *testing.T) {
	s := newStores(t)

	read := mustPermission(t, s, "transactions:read")
	role := mustRole(t, s, "Temp", teamScope, read.ID)
	mustAssign(t, s, "u1", role.ID, teamScope, timePtr(time.Now().UTC().Add(-time.Hour)))

	codes, err := s.assignments.GetUserPermissionCodes(context.Background(), "u1", teamScope)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestAssignmentStore_ListRoleUsers(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()

	role := mustRole(t, s, "Support Agent", teamScope)
	mustAssign(t, s, "u1", role.ID, teamScope, nil)
	mustAssign(t, s, "u1", role.ID, companyScope, nil)
	// Expired holders still count; their cached results must drop too.
	mustAssign(t, s, "u2", role.ID, teamScope, timePtr(time.Now().UTC().Add(-time.Hour)))

	users, err := s.assignments.ListRoleUsers(ctx, role.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)
}

func TestAssignmentStore_SweepExpired(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()

	role := mustRole(t, s, "Support Agent", teamScope)
	mustAssign(t, s, "u1", role.ID, teamScope, timePtr(time.Now().UTC().Add(-72*time.Hour)))
	mustAssign(t, s, "u2", role.ID, teamScope, timePtr(time.Now().UTC().Add(-time.Hour)))
	mustAssign(t, s, "u3", role.ID, teamScope, nil)

	swept, err := s.assignments.SweepExpired(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	users, err := s.assignments.ListRoleUsers(ctx, role.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u2", "u3"}, users)
}
