package scopes

import (
	"fmt"
	"strings"
)

// Type identifies one level of the organizational hierarchy. The vendor-side
// levels mirror the mainline levels and carry the same privilege rank.
type Type string

const (
	TypeTeam         Type = "TEAM"
	TypeDepartment   Type = "DEPARTMENT"
	TypeCompany      Type = "COMPANY"
	TypeClient       Type = "CLIENT"
	TypeOrganization Type = "ORGANIZATION"

	TypeVendorTeam       Type = "VENDOR_TEAM"
	TypeVendorDepartment Type = "VENDOR_DEPARTMENT"
	TypeVendorCompany    Type = "VENDOR_COMPANY"
	TypeVendorClient     Type = "VENDOR_CLIENT"
)

// ranks orders scope types by privilege. A higher rank means a more
// privileged scope. Vendor-side types rank equal to their mainline
// counterpart.
var ranks = map[Type]int{
	TypeTeam:             1,
	TypeVendorTeam:       1,
	TypeDepartment:       2,
	TypeVendorDepartment: 2,
	TypeCompany:          3,
	TypeVendorCompany:    3,
	TypeClient:           4,
	TypeVendorClient:     4,
	TypeOrganization:     5,
}

// Rank returns the privilege rank of the scope type. Unknown types rank 0,
// below every valid type, so comparisons against them fail closed.
func (t Type) Rank() int {
	return ranks[t]
}

// Valid reports whether t is a known scope type.
func (t Type) Valid() bool {
	_, ok := ranks[t]
	return ok
}

// Scope identifies one concrete node in the organizational hierarchy.
type Scope struct {
	Type Type   `json:"scope_type"`
	ID   string `json:"scope_id"`
}

// String returns the canonical "TYPE:id" form used in cache keys and logs.
func (s Scope) String() string {
	return string(s.Type) + ":" + s.ID
}

// ParseScope parses the canonical "TYPE:id" form produced by String.
func ParseScope(s string) (Scope, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok {
		return Scope{}, fmt.Errorf("invalid scope %q, expected TYPE:id", s)
	}
	scope := Scope{Type: Type(typ), ID: id}
	if err := scope.Validate(); err != nil {
		return Scope{}, err
	}
	return scope, nil
}

// Validate returns an error if the scope type is unknown or the ID is empty.
func (s Scope) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown scope type %q", s.Type)
	}
	if s.ID == "" {
		return fmt.Errorf("scope id required for %s", s.Type)
	}
	return nil
}

// AllTypes returns every known scope type, most privileged first.
func AllTypes() []Type {
	return []Type{
		TypeOrganization,
		TypeClient, TypeVendorClient,
		TypeCompany, TypeVendorCompany,
		TypeDepartment, TypeVendorDepartment,
		TypeTeam, TypeVendorTeam,
	}
}
