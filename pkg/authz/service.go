package authz

import (
	"context"
	"time"

	"github.com/gatehouse-io/gatehouse/pkg/audit"
	"github.com/gatehouse-io/gatehouse/pkg/events"
	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// Service is the facade over the stores, the resolver and the guard. Every
// mutating operation runs the escalation guard first, performs the store
// call, invalidates the resolution cache for every affected user, and then
// emits one audit record and one event. Audit and event failures are logged
// and swallowed; they never roll back the mutation.
type Service struct {
	catalog     *CatalogStore
	roles       *RoleStore
	assignments *AssignmentStore
	grants      *GrantStore
	resolver    *Resolver
	guard       *EscalationGuard
	cache       ResolutionCache
	auditor     audit.Logger
	publisher   events.Publisher
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// ServiceDeps carries the service's collaborators. Audit, Events, Logger and
// Metrics are optional; the rest are required.
type ServiceDeps struct {
	Catalog     *CatalogStore
	Roles       *RoleStore
	Assignments *AssignmentStore
	Grants      *GrantStore
	Resolver    *Resolver
	Guard       *EscalationGuard
	Cache       ResolutionCache
	Audit       audit.Logger
	Events      events.Publisher
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// NewService wires the facade together.
func NewService(deps ServiceDeps) *Service {
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		catalog:     deps.Catalog,
		roles:       deps.Roles,
		assignments: deps.Assignments,
		grants:      deps.Grants,
		resolver:    deps.Resolver,
		guard:       deps.Guard,
		cache:       deps.Cache,
		auditor:     deps.Audit,
		publisher:   deps.Events,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
	}
}

// --- Permission catalog ---
//
// Catalog entries are global, so catalog operations carry no target scope
// and bypass the escalation guard.

// RegisterPermission adds a permission definition to the catalog.
func (s *Service) RegisterPermission(ctx context.Context, actor Actor, code, name, category, description string) (*Permission, error) {
	perm, err := s.catalog.CreatePermission(ctx, code, name, category, description)
	if err != nil {
		return nil, err
	}

	s.emit(ctx,
		audit.NewRecord(audit.ActionPermissionRegistered, audit.EntityPermission, perm.ID).
			WithActor(actor.UserID).
			WithMetadata("code", perm.Code),
		events.NewEvent(events.TypePermissionRegistered).
			WithUser(actor.UserID).
			WithData("permission_id", perm.ID).
			WithData("code", perm.Code))

	return perm, nil
}

// RemovePermission deletes a catalog entry. References from roles and grants
// become dangling and are tolerated by the resolver, but any cached result
// could contain the removed code, so the whole cache is dropped.
func (s *Service) RemovePermission(ctx context.Context, actor Actor, id string) error {
	if err := s.catalog.DeletePermission(ctx, id); err != nil {
		return err
	}

	s.cache.InvalidateAll(ctx)
	s.countInvalidation("permission_removed")

	s.emit(ctx,
		audit.NewRecord(audit.ActionPermissionRemoved, audit.EntityPermission, id).
			WithActor(actor.UserID),
		events.NewEvent(events.TypePermissionRemoved).
			WithUser(actor.UserID).
			WithData("permission_id", id))

	return nil
}

// GetPermission retrieves a catalog entry by ID.
func (s *Service) GetPermission(ctx context.Context, id string) (*Permission, error) {
	return s.catalog.GetPermission(ctx, id)
}

// GetPermissionByCode retrieves a catalog entry by code.
func (s *Service) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	return s.catalog.GetPermissionByCode(ctx, code)
}

// ListPermissions lists catalog entries, optionally filtered by category.
func (s *Service) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	return s.catalog.ListPermissions(ctx, category)
}

// --- Roles ---

// CreateRole creates a custom role at the params' scope.
func (s *Service) CreateRole(ctx context.Context, actor Actor, p CreateRoleParams) (*Role, error) {
	target := scopes.Scope{Type: p.ScopeType, ID: p.ScopeID}
	// A malformed scope is a bad request, not a denial, so validation runs
	// before the guard.
	if err := target.Validate(); err != nil {
		return nil, InvalidOperationError(err.Error())
	}
	if err := s.guard.Authorize(ctx, actor, target, ""); err != nil {
		return nil, err
	}

	role, err := s.roles.CreateRole(ctx, p)
	if err != nil {
		return nil, err
	}

	s.emit(ctx,
		audit.NewRecord(audit.ActionRoleCreated, audit.EntityRole, role.ID).
			WithActor(actor.UserID).
			WithScope(string(role.ScopeType), role.ScopeID).
			WithMetadata("slug", role.Slug),
		events.NewEvent(events.TypeRoleCreated).
			WithUser(actor.UserID).
			WithScope(string(role.ScopeType), role.ScopeID).
			WithData("role_id", role.ID).
			WithData("slug", role.Slug))

	return role, nil
}

// UpdateRole applies a patch to a role. Renaming a system role is rejected
// by the store.
func (s *Service) UpdateRole(ctx context.Context, actor Actor, id string, patch RolePatch) (*Role, error) {
	role, err := s.roles.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRole(ctx, actor, role); err != nil {
		return nil, err
	}

	updated, err := s.roles.UpdateRole(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	// Resolved results carry role names, so holders must be recomputed.
	s.invalidateRoleUsers(ctx, id, "role_changed")

	s.emit(ctx,
		audit.NewRecord(audit.ActionRoleUpdated, audit.EntityRole, id).
			WithActor(actor.UserID).
			WithScope(string(updated.ScopeType), updated.ScopeID),
		events.NewEvent(events.TypeRoleUpdated).
			WithUser(actor.UserID).
			WithScope(string(updated.ScopeType), updated.ScopeID).
			WithData("role_id", id))

	return updated, nil
}

// SetRolePermissions replaces a role's permission set and invalidates every
// current holder.
func (s *Service) SetRolePermissions(ctx context.Context, actor Actor, id string, permissionIDs []string) error {
	role, err := s.roles.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeRole(ctx, actor, role); err != nil {
		return err
	}

	if err := s.roles.SetRolePermissions(ctx, id, permissionIDs); err != nil {
		return err
	}

	s.invalidateRoleUsers(ctx, id, "role_changed")

	s.emit(ctx,
		audit.NewRecord(audit.ActionRolePermissionsChanged, audit.EntityRole, id).
			WithActor(actor.UserID).
			WithScope(string(role.ScopeType), role.ScopeID).
			WithMetadata("permission_count", len(permissionIDs)),
		events.NewEvent(events.TypeRolePermissionsChanged).
			WithUser(actor.UserID).
			WithScope(string(role.ScopeType), role.ScopeID).
			WithData("role_id", id))

	return nil
}

// DeleteRole soft-deletes a role and invalidates every current holder.
func (s *Service) DeleteRole(ctx context.Context, actor Actor, id string) error {
	role, err := s.roles.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeRole(ctx, actor, role); err != nil {
		return err
	}

	// Holders must be collected before the soft delete hides the role's
	// assignments from reads.
	userIDs, err := s.assignments.ListRoleUsers(ctx, id)
	if err != nil {
		return err
	}

	if err := s.roles.DeleteRole(ctx, id); err != nil {
		return err
	}

	for _, userID := range userIDs {
		s.cache.InvalidateUser(ctx, userID)
	}
	s.countInvalidation("role_deleted")

	s.emit(ctx,
		audit.NewRecord(audit.ActionRoleDeleted, audit.EntityRole, id).
			WithActor(actor.UserID).
			WithScope(string(role.ScopeType), role.ScopeID),
		events.NewEvent(events.TypeRoleDeleted).
			WithUser(actor.UserID).
			WithScope(string(role.ScopeType), role.ScopeID).
			WithData("role_id", id))

	return nil
}

// RestoreRole undoes a role's soft delete. Assignments of the role become
// active again, so every holder's cached resolution is dropped.
func (s *Service) RestoreRole(ctx context.Context, actor Actor, id string) (*Role, error) {
	role, err := s.roles.getRoleIncludingDeleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRole(ctx, actor, role); err != nil {
		return nil, err
	}

	restored, err := s.roles.RestoreRole(ctx, id)
	if err != nil {
		return nil, err
	}

	s.invalidateRoleUsers(ctx, id, "role_restored")

	s.emit(ctx,
		audit.NewRecord(audit.ActionRoleRestored, audit.EntityRole, id).
			WithActor(actor.UserID).
			WithScope(string(restored.ScopeType), restored.ScopeID).
			WithMetadata("slug", restored.Slug),
		events.NewEvent(events.TypeRoleRestored).
			WithUser(actor.UserID).
			WithScope(string(restored.ScopeType), restored.ScopeID).
			WithData("role_id", id).
			WithData("slug", restored.Slug))

	return restored, nil
}

// GetRole retrieves a role by ID.
func (s *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	role, err := s.roles.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	role.Permissions, err = s.roles.GetRolePermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// FindRoleBySlug retrieves a role by slug within one scope.
func (s *Service) FindRoleBySlug(ctx context.Context, slug string, scope scopes.Scope) (*Role, error) {
	return s.roles.FindRoleBySlug(ctx, slug, scope.Type, scope.ID)
}

// ListRoles lists the non-deleted roles at one scope.
func (s *Service) ListRoles(ctx context.Context, scope scopes.Scope) ([]Role, error) {
	return s.roles.ListRoles(ctx, scope.Type, scope.ID)
}

// --- Role assignments ---

// AssignRole binds a user to a role at a scope.
func (s *Service) AssignRole(ctx context.Context, actor Actor, userID, roleID string, scope scopes.Scope, expiresAt *time.Time) (*RoleAssignment, error) {
	if err := scope.Validate(); err != nil {
		return nil, InvalidOperationError(err.Error())
	}
	if err := s.guard.Authorize(ctx, actor, scope, userID); err != nil {
		return nil, err
	}

	assignment, err := s.assignments.Assign(ctx, userID, roleID, scope, actor.UserID, expiresAt)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateUser(ctx, userID)
	s.countInvalidation("assignment_changed")

	s.emit(ctx,
		audit.NewRecord(audit.ActionRoleAssigned, audit.EntityAssignment, assignment.ID).
			WithActor(actor.UserID).
			WithScope(string(scope.Type), scope.ID).
			WithMetadata("user_id", userID).
			WithMetadata("role_id", roleID),
		events.NewEvent(events.TypeRoleAssigned).
			WithUser(userID).
			WithScope(string(scope.Type), scope.ID).
			WithData("role_id", roleID).
			WithData("assignment_id", assignment.ID))

	return assignment, nil
}

// UnassignRole removes a user's role assignment at a scope.
func (s *Service) UnassignRole(ctx context.Context, actor Actor, userID, roleID string, scope scopes.Scope) error {
	if err := scope.Validate(); err != nil {
		return InvalidOperationError(err.Error())
	}
	if err := s.guard.Authorize(ctx, actor, scope, userID); err != nil {
		return err
	}

	if err := s.assignments.Unassign(ctx, userID, roleID, scope); err != nil {
		return err
	}

	s.cache.InvalidateUser(ctx, userID)
	s.countInvalidation("assignment_changed")

	s.emit(ctx,
		audit.NewRecord(audit.ActionRoleRevoked, audit.EntityAssignment, userID+"/"+roleID).
			WithActor(actor.UserID).
			WithScope(string(scope.Type), scope.ID).
			WithMetadata("user_id", userID).
			WithMetadata("role_id", roleID),
		events.NewEvent(events.TypeRoleRevoked).
			WithUser(userID).
			WithScope(string(scope.Type), scope.ID).
			WithData("role_id", roleID))

	return nil
}

// GetUserRoles returns a user's unexpired assignments, optionally at one
// scope.
func (s *Service) GetUserRoles(ctx context.Context, userID string, scope *scopes.Scope) ([]RoleAssignment, error) {
	return s.assignments.GetUserAssignments(ctx, userID, scope)
}

// --- Permission grants ---

// GrantPermission upserts a direct ALLOW (or, via p.GrantType, DENY)
// override for a user.
func (s *Service) GrantPermission(ctx context.Context, actor Actor, p GrantParams) (*PermissionGrant, error) {
	target := scopes.Scope{Type: p.ScopeType, ID: p.ScopeID}
	if err := target.Validate(); err != nil {
		return nil, InvalidOperationError(err.Error())
	}
	if err := s.guard.Authorize(ctx, actor, target, p.UserID); err != nil {
		return nil, err
	}

	p.GrantedBy = actor.UserID
	grant, err := s.grants.Grant(ctx, p)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateUser(ctx, p.UserID)
	s.countInvalidation("grant_changed")

	s.emit(ctx,
		audit.NewRecord(audit.ActionGrantCreated, audit.EntityGrant, grant.ID).
			WithActor(actor.UserID).
			WithScope(string(grant.ScopeType), grant.ScopeID).
			WithMetadata("user_id", grant.UserID).
			WithMetadata("permission_code", grant.PermissionCode).
			WithMetadata("grant_type", string(grant.GrantType)),
		events.NewEvent(events.TypeGrantCreated).
			WithUser(grant.UserID).
			WithScope(string(grant.ScopeType), grant.ScopeID).
			WithData("grant_id", grant.ID).
			WithData("permission_code", grant.PermissionCode).
			WithData("grant_type", string(grant.GrantType)))

	return grant, nil
}

// DenyPermission is GrantPermission with the grant type forced to DENY.
func (s *Service) DenyPermission(ctx context.Context, actor Actor, p GrantParams) (*PermissionGrant, error) {
	p.GrantType = GrantDeny
	return s.GrantPermission(ctx, actor, p)
}

// RevokePermission removes a grant by its unique key.
func (s *Service) RevokePermission(ctx context.Context, actor Actor, userID, permissionID string, scope scopes.Scope) error {
	if err := scope.Validate(); err != nil {
		return InvalidOperationError(err.Error())
	}
	if err := s.guard.Authorize(ctx, actor, scope, userID); err != nil {
		return err
	}

	if err := s.grants.Revoke(ctx, userID, permissionID, scope); err != nil {
		return err
	}

	s.cache.InvalidateUser(ctx, userID)
	s.countInvalidation("grant_changed")

	s.emit(ctx,
		audit.NewRecord(audit.ActionGrantRevoked, audit.EntityGrant, userID+"/"+permissionID).
			WithActor(actor.UserID).
			WithScope(string(scope.Type), scope.ID).
			WithMetadata("user_id", userID).
			WithMetadata("permission_id", permissionID),
		events.NewEvent(events.TypeGrantRevoked).
			WithUser(userID).
			WithScope(string(scope.Type), scope.ID).
			WithData("permission_id", permissionID))

	return nil
}

// GetUserGrants returns a user's unexpired grants, optionally at one scope.
func (s *Service) GetUserGrants(ctx context.Context, userID string, scope *scopes.Scope) ([]PermissionGrant, error) {
	return s.grants.GetUserGrants(ctx, userID, scope)
}

// --- Resolution ---

// Resolve returns the user's effective permissions at a scope.
func (s *Service) Resolve(ctx context.Context, userID string, scope scopes.Scope) (*EffectivePermissions, error) {
	return s.resolver.Resolve(ctx, userID, scope)
}

// CheckPermission reports whether the user holds the required permission at
// the scope, after wildcard matching.
func (s *Service) CheckPermission(ctx context.Context, userID string, scope scopes.Scope, required string) (bool, error) {
	return s.resolver.Check(ctx, userID, scope, required)
}

// CheckAnyPermission reports whether the user holds at least one of the
// required permissions.
func (s *Service) CheckAnyPermission(ctx context.Context, userID string, scope scopes.Scope, required ...string) (bool, error) {
	ep, err := s.resolver.Resolve(ctx, userID, scope)
	if err != nil {
		return false, err
	}
	return ep.HasAny(required...), nil
}

// CheckAllPermissions reports whether the user holds every required
// permission.
func (s *Service) CheckAllPermissions(ctx context.Context, userID string, scope scopes.Scope, required ...string) (bool, error) {
	ep, err := s.resolver.Resolve(ctx, userID, scope)
	if err != nil {
		return false, err
	}
	return ep.HasAll(required...), nil
}

// --- internals ---

// authorizeRole runs the guard against a role's own scope.
func (s *Service) authorizeRole(ctx context.Context, actor Actor, role *Role) error {
	target := scopes.Scope{Type: role.ScopeType, ID: role.ScopeID}
	return s.guard.Authorize(ctx, actor, target, "")
}

// invalidateRoleUsers drops cached resolutions for every user currently
// holding the role.
func (s *Service) invalidateRoleUsers(ctx context.Context, roleID, reason string) {
	userIDs, err := s.assignments.ListRoleUsers(ctx, roleID)
	if err != nil {
		// Fall back to a full flush rather than serve stale permissions.
		s.logger.WithError(err).Warnf("Failed to list holders of role %s, flushing whole cache", roleID)
		s.cache.InvalidateAll(ctx)
		s.countInvalidation(reason)
		return
	}
	for _, userID := range userIDs {
		s.cache.InvalidateUser(ctx, userID)
	}
	s.countInvalidation(reason)
}

// emit writes the audit record and publishes the event, swallowing failures.
func (s *Service) emit(ctx context.Context, record *audit.Record, event *events.Event) {
	if err := s.auditor.Log(ctx, record); err != nil {
		s.logger.WithError(err).Warnf("Audit write failed for %s", record.Action)
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).Warnf("Event publish failed for %s", event.Type)
	}
}

func (s *Service) countInvalidation(reason string) {
	if s.metrics != nil {
		s.metrics.CacheInvalidationsTotal.WithLabelValues("resolution", reason).Inc()
	}
}
