package authz

import (
	"regexp"
	"strings"
)

// Wildcard is the super-admin permission code; it matches anything.
const Wildcard = "*"

// codePattern is the conventional "resource:action" form. The reserved
// wildcard forms "resource:*" and "*" are accepted separately.
var codePattern = regexp.MustCompile(`^[a-z0-9_.-]+:[a-z0-9_.-]+$`)

// ValidPermissionCode reports whether code is a well-formed permission code,
// including the reserved wildcard forms.
func ValidPermissionCode(code string) bool {
	if code == Wildcard {
		return true
	}
	if resource, ok := strings.CutSuffix(code, ":*"); ok {
		return resource != "" && !strings.Contains(resource, ":")
	}
	return codePattern.MatchString(code)
}

// PermissionMatches reports whether a held permission code satisfies a
// required one. Matching is exact equality, a trailing "resource:*" prefix
// wildcard, or the global "*".
func PermissionMatches(held, required string) bool {
	if held == required {
		return true
	}
	if held == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(held, "*"); ok && strings.HasSuffix(prefix, ":") {
		return strings.HasPrefix(required, prefix)
	}
	return false
}

// Has reports whether the resolved set satisfies the required permission.
func (ep *EffectivePermissions) Has(required string) bool {
	for _, held := range ep.Permissions {
		if PermissionMatches(held, required) {
			return true
		}
	}
	return false
}

// HasAll reports whether the resolved set satisfies every required permission.
func (ep *EffectivePermissions) HasAll(required ...string) bool {
	for _, r := range required {
		if !ep.Has(r) {
			return false
		}
	}
	return true
}

// HasAny reports whether the resolved set satisfies at least one required
// permission. An empty requirement list is never satisfied.
func (ep *EffectivePermissions) HasAny(required ...string) bool {
	for _, r := range required {
		if ep.Has(r) {
			return true
		}
	}
	return false
}
