package scopes

import (
	"context"
	"sync"
)

// MaxDepth bounds hierarchy walks. The modeled tree is at most five levels
// deep; anything past this indicates a corrupted parent chain.
const MaxDepth = 8

// Directory resolves the organizational hierarchy. Implementations are
// external to the permission engine: the engine only ever asks for a node's
// parent, for ancestry, and whether one user may manage another.
type Directory interface {
	// ParentOf returns the parent scope of the given scope. The second
	// return is false when the scope is a root (ORGANIZATION has no parent)
	// or is unknown to the directory.
	ParentOf(ctx context.Context, scope Scope) (Scope, bool, error)

	// IsDescendant reports whether target equals ancestor or sits anywhere
	// below it in the hierarchy.
	IsDescendant(ctx context.Context, ancestor, target Scope) (bool, error)

	// CanManageUser reports whether the actor is permitted to affect the
	// target user, independent of scope rank.
	CanManageUser(ctx context.Context, actorUserID, targetUserID string) (bool, error)
}

// MemoryDirectory is a map-backed Directory for tests and single-process
// deployments. Safe for concurrent use.
type MemoryDirectory struct {
	mu      sync.RWMutex
	parents map[Scope]Scope
	orgs    map[string]string // userID -> organizationID
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		parents: make(map[Scope]Scope),
		orgs:    make(map[string]string),
	}
}

// SetParent records that child belongs to parent.
func (d *MemoryDirectory) SetParent(child, parent Scope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parents[child] = parent
}

// SetUserOrganization records the organization a user belongs to.
func (d *MemoryDirectory) SetUserOrganization(userID, organizationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orgs[userID] = organizationID
}

// ParentOf implements Directory.
func (d *MemoryDirectory) ParentOf(ctx context.Context, scope Scope) (Scope, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	parent, ok := d.parents[scope]
	return parent, ok, nil
}

// IsDescendant implements Directory.
func (d *MemoryDirectory) IsDescendant(ctx context.Context, ancestor, target Scope) (bool, error) {
	if ancestor == target {
		return true, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	current := target
	for i := 0; i < MaxDepth; i++ {
		parent, ok := d.parents[current]
		if !ok {
			return false, nil
		}
		if parent == ancestor {
			return true, nil
		}
		current = parent
	}
	return false, nil
}

// CanManageUser implements Directory. Two users are manageable when they
// belong to the same organization; unknown users are never manageable.
func (d *MemoryDirectory) CanManageUser(ctx context.Context, actorUserID, targetUserID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	actorOrg, ok := d.orgs[actorUserID]
	if !ok {
		return false, nil
	}
	targetOrg, ok := d.orgs[targetUserID]
	if !ok {
		return false, nil
	}
	return actorOrg == targetOrg, nil
}
