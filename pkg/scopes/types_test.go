package scopes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeRank(t *testing.T) {
	assert.Equal(t, 5, TypeOrganization.Rank())
	assert.Equal(t, 4, TypeClient.Rank())
	assert.Equal(t, 3, TypeCompany.Rank())
	assert.Equal(t, 2, TypeDepartment.Rank())
	assert.Equal(t, 1, TypeTeam.Rank())

	// Vendor-side types rank equal to their mainline counterpart.
	assert.Equal(t, TypeClient.Rank(), TypeVendorClient.Rank())
	assert.Equal(t, TypeCompany.Rank(), TypeVendorCompany.Rank())
	assert.Equal(t, TypeDepartment.Rank(), TypeVendorDepartment.Rank())
	assert.Equal(t, TypeTeam.Rank(), TypeVendorTeam.Rank())

	// Unknown types rank below everything.
	assert.Equal(t, 0, Type("BOGUS").Rank())
}

func TestScopeValidate(t *testing.T) {
	assert.NoError(t, Scope{Type: TypeCompany, ID: "co-1"}.Validate())
	assert.Error(t, Scope{Type: Type("BOGUS"), ID: "x"}.Validate())
	assert.Error(t, Scope{Type: TypeCompany}.Validate())
}

func TestScopeString(t *testing.T) {
	s := Scope{Type: TypeDepartment, ID: "dep-9"}
	assert.Equal(t, "DEPARTMENT:dep-9", s.String())
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("COMPANY:co-1")
	require.NoError(t, err)
	assert.Equal(t, Scope{Type: TypeCompany, ID: "co-1"}, s)

	_, err = ParseScope("COMPANY")
	assert.Error(t, err)

	_, err = ParseScope("BOGUS:x")
	assert.Error(t, err)

	_, err = ParseScope("COMPANY:")
	assert.Error(t, err)
}

func TestMemoryDirectory_ParentChain(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	org := Scope{Type: TypeOrganization, ID: "org-1"}
	client := Scope{Type: TypeClient, ID: "cl-1"}
	company := Scope{Type: TypeCompany, ID: "co-1"}
	dept := Scope{Type: TypeDepartment, ID: "dep-1"}

	dir.SetParent(client, org)
	dir.SetParent(company, client)
	dir.SetParent(dept, company)

	parent, ok, err := dir.ParentOf(ctx, company)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, client, parent)

	// Roots have no parent.
	_, ok, err = dir.ParentOf(ctx, org)
	require.NoError(t, err)
	assert.False(t, ok)

	desc, err := dir.IsDescendant(ctx, org, dept)
	require.NoError(t, err)
	assert.True(t, desc)

	desc, err = dir.IsDescendant(ctx, company, company)
	require.NoError(t, err)
	assert.True(t, desc, "a scope is a descendant of itself")

	desc, err = dir.IsDescendant(ctx, dept, org)
	require.NoError(t, err)
	assert.False(t, desc, "ancestry is not symmetric")

	other := Scope{Type: TypeCompany, ID: "co-2"}
	desc, err = dir.IsDescendant(ctx, other, dept)
	require.NoError(t, err)
	assert.False(t, desc)
}

func TestMemoryDirectory_CyclicChainTerminates(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	a := Scope{Type: TypeCompany, ID: "a"}
	b := Scope{Type: TypeCompany, ID: "b"}
	dir.SetParent(a, b)
	dir.SetParent(b, a)

	desc, err := dir.IsDescendant(ctx, Scope{Type: TypeOrganization, ID: "org"}, a)
	require.NoError(t, err)
	assert.False(t, desc)
}

func TestMemoryDirectory_CanManageUser(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	dir.SetUserOrganization("u-1", "org-1")
	dir.SetUserOrganization("u-2", "org-1")
	dir.SetUserOrganization("u-3", "org-2")

	ok, err := dir.CanManageUser(ctx, "u-1", "u-2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.CanManageUser(ctx, "u-1", "u-3")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = dir.CanManageUser(ctx, "u-1", "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
