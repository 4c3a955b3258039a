// Package authz is the permission engine: a catalog of permission codes,
// scoped roles, time-bounded role assignments, direct ALLOW/DENY grants, and
// a resolver that folds all of them down the organizational hierarchy into
// one effective permission set per (user, scope).
//
// Resolution walks from the organization root down to the requested scope.
// At each level the inherited set is unioned with the level's role
// permissions and ALLOW grants, then that level's DENY grants are removed.
// A deny therefore strips everything inherited from above it, while a more
// local allow can restore what an ancestor denied. Results are cached per
// (user, scope) with a short TTL and invalidated on every mutation that
// could change them.
//
// Service is the entry point. It runs the scope-escalation guard before any
// mutation, keeps the cache coherent, and emits audit records and events:
//
//	service := authz.NewService(authz.ServiceDeps{
//		Catalog:     authz.NewCatalogStore(db),
//		Roles:       authz.NewRoleStore(db),
//		Assignments: authz.NewAssignmentStore(db),
//		Grants:      authz.NewGrantStore(db),
//		Resolver:    resolver,
//		Guard:       authz.NewEscalationGuard(directory, metrics),
//		Cache:       cache,
//	})
//
//	set, err := service.ResolvePermissions(ctx, userID, scope)
//	if err == nil && set.Has("transactions:read") {
//		// permitted
//	}
package authz
