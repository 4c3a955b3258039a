package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPermissionCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"transactions:read", true},
		{"billing.invoices:approve", true},
		{"audit-log:export_csv", true},
		{"transactions:*", true},
		{"*", true},
		{"", false},
		{"transactions", false},
		{"Transactions:Read", false},
		{"transactions:read:all", false},
		{":read", false},
		{"transactions:", false},
		{"transactions:read:*", false},
		{":*", false},
		{"transactions read", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidPermissionCode(tt.code))
		})
	}
}

func TestPermissionMatches(t *testing.T) {
	tests := []struct {
		name     string
		held     string
		required string
		matches  bool
	}{
		{"exact", "transactions:read", "transactions:read", true},
		{"different action", "transactions:read", "transactions:write", false},
		{"different resource", "transactions:read", "reports:read", false},
		{"global wildcard", "*", "transactions:read", true},
		{"resource wildcard", "transactions:*", "transactions:read", true},
		{"resource wildcard other resource", "transactions:*", "reports:read", false},
		{"resource wildcard no prefix confusion", "transactions:*", "transaction:read", false},
		{"plain code never widens", "transactions:read", "transactions:*", false},
		{"wildcard required", "*", "*", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, PermissionMatches(tt.held, tt.required))
		})
	}
}

func TestEffectivePermissions_Has(t *testing.T) {
	ep := &EffectivePermissions{Permissions: []string{"reports:*", "transactions:read"}}

	assert.True(t, ep.Has("transactions:read"))
	assert.True(t, ep.Has("reports:export"))
	assert.False(t, ep.Has("transactions:write"))
}

func TestEffectivePermissions_HasAll(t *testing.T) {
	ep := &EffectivePermissions{Permissions: []string{"reports:*", "transactions:read"}}

	assert.True(t, ep.HasAll("reports:read", "transactions:read"))
	assert.False(t, ep.HasAll("reports:read", "transactions:write"))
	assert.True(t, ep.HasAll())
}

func TestEffectivePermissions_HasAny(t *testing.T) {
	ep := &EffectivePermissions{Permissions: []string{"transactions:read"}}

	assert.True(t, ep.HasAny("reports:read", "transactions:read"))
	assert.False(t, ep.HasAny("reports:read", "billing:manage"))
	assert.False(t, ep.HasAny())
}
