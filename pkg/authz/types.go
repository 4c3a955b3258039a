package authz

import (
	"sort"
	"time"

	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// Permission is one entry in the permission catalog. Codes take the stable
// form "resource:action" (e.g. "transactions:read") and are globally unique.
type Permission struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named set of permissions scoped to a (scopeType, scopeId) pair.
// System roles cannot have their name or permission set modified and cannot
// be deleted. Soft-deleted roles are excluded from all queries.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Description string       `json:"description,omitempty"`
	Color       string       `json:"color,omitempty"`
	ScopeType   scopes.Type  `json:"scope_type"`
	ScopeID     string       `json:"scope_id,omitempty"`
	IsSystem    bool         `json:"is_system"`
	IsDefault   bool         `json:"is_default"`
	Priority    int          `json:"priority"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
}

// RolePatch carries optional field updates for a role. Nil fields are left
// unchanged. Name is rejected for system roles; the rest stay mutable.
type RolePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	IsDefault   *bool   `json:"is_default,omitempty"`
}

// RoleAssignment binds a user to a role at one concrete scope instance.
// An assignment with a past ExpiresAt is inactive but not deleted.
type RoleAssignment struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	RoleID     string      `json:"role_id"`
	ScopeType  scopes.Type `json:"scope_type"`
	ScopeID    string      `json:"scope_id"`
	AssignedBy string      `json:"assigned_by,omitempty"`
	AssignedAt time.Time   `json:"assigned_at"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`

	// Denormalized role fields, populated on reads.
	RoleName string `json:"role_name,omitempty"`
	RoleSlug string `json:"role_slug,omitempty"`
}

// GrantType distinguishes direct allows from direct denies.
type GrantType string

const (
	GrantAllow GrantType = "ALLOW"
	GrantDeny  GrantType = "DENY"
)

// PermissionGrant is a per-user, per-scope override independent of role
// membership. A second grant for the same (user, permission, scope) key
// replaces the first.
type PermissionGrant struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	PermissionID string      `json:"permission_id"`
	ScopeType    scopes.Type `json:"scope_type"`
	ScopeID      string      `json:"scope_id"`
	GrantType    GrantType   `json:"grant_type"`
	GrantedBy    string      `json:"granted_by,omitempty"`
	GrantedAt    time.Time   `json:"granted_at"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Constraints  string      `json:"constraints,omitempty"`

	// Denormalized permission code, populated on reads.
	PermissionCode string `json:"permission_code,omitempty"`
}

// RoleSummary is the role slice of a resolved permission set.
type RoleSummary struct {
	RoleID   string `json:"role_id"`
	RoleName string `json:"role_name"`
	RoleSlug string `json:"role_slug"`
}

// EffectivePermissions is the fully resolved set of permission codes a user
// holds at one scope, after roles, grants, and inheritance. It is computed,
// cached, and never persisted.
type EffectivePermissions struct {
	UserID      string        `json:"user_id"`
	ScopeType   scopes.Type   `json:"scope_type"`
	ScopeID     string        `json:"scope_id"`
	Permissions []string      `json:"permissions"`
	Roles       []RoleSummary `json:"roles"`
}

// newEffectivePermissions builds a result with a deterministic permission
// ordering so repeated resolutions compare equal.
func newEffectivePermissions(userID string, scope scopes.Scope, perms map[string]struct{}, roles []RoleSummary) *EffectivePermissions {
	codes := make([]string, 0, len(perms))
	for code := range perms {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	if roles == nil {
		roles = []RoleSummary{}
	}

	return &EffectivePermissions{
		UserID:      userID,
		ScopeType:   scope.Type,
		ScopeID:     scope.ID,
		Permissions: codes,
		Roles:       roles,
	}
}

// Actor identifies the caller of a mutating operation together with its own
// scope and the tenancy identifiers used for default-scope derivation. The
// engine never authenticates the actor; upstream layers do.
type Actor struct {
	UserID         string       `json:"user_id"`
	Scope          scopes.Scope `json:"scope"`
	OrganizationID string       `json:"organization_id,omitempty"`
	ClientID       string       `json:"client_id,omitempty"`
	CompanyID      string       `json:"company_id,omitempty"`
	DepartmentID   string       `json:"department_id,omitempty"`
}

// DefaultScope returns the actor's explicit scope when set, otherwise the
// most specific tenancy identifier it carries.
func (a Actor) DefaultScope() scopes.Scope {
	if a.Scope.Type != "" && a.Scope.ID != "" {
		return a.Scope
	}
	switch {
	case a.DepartmentID != "":
		return scopes.Scope{Type: scopes.TypeDepartment, ID: a.DepartmentID}
	case a.CompanyID != "":
		return scopes.Scope{Type: scopes.TypeCompany, ID: a.CompanyID}
	case a.ClientID != "":
		return scopes.Scope{Type: scopes.TypeClient, ID: a.ClientID}
	case a.OrganizationID != "":
		return scopes.Scope{Type: scopes.TypeOrganization, ID: a.OrganizationID}
	}
	return scopes.Scope{}
}
