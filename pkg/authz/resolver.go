package authz

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// Resolver computes the effective permission set a user holds at a scope:
// role permissions and ALLOW grants at each scope in the parent chain are
// unioned top-down, and DENY grants at a scope strip permissions after that
// scope's union. A deny therefore always beats an allow inherited from any
// ancestor.
type Resolver struct {
	assignments *AssignmentStore
	grants      *GrantStore
	directory   scopes.Directory
	cache       ResolutionCache
	metrics     *observability.Metrics
	tracer      trace.Tracer
}

// NewResolver creates a resolver. metrics may be nil.
func NewResolver(assignments *AssignmentStore, grants *GrantStore, directory scopes.Directory, cache ResolutionCache, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		assignments: assignments,
		grants:      grants,
		directory:   directory,
		cache:       cache,
		metrics:     metrics,
		tracer:      otel.Tracer("gatehouse/authz"),
	}
}

// Resolve returns the user's effective permissions at the scope. A user with
// no assignments and no grants anywhere in the chain resolves to an empty
// set, never an error.
func (r *Resolver) Resolve(ctx context.Context, userID string, scope scopes.Scope) (*EffectivePermissions, error) {
	if err := scope.Validate(); err != nil {
		return nil, InvalidOperationError(err.Error())
	}

	key := CacheKey(userID, scope)
	if cached, ok := r.cache.Get(ctx, key); ok {
		r.countResolution("cache")
		r.countCache(true)
		return cached, nil
	}
	r.countCache(false)

	ctx, span := r.tracer.Start(ctx, "authz.resolve",
		trace.WithAttributes(
			attribute.String("authz.user_id", userID),
			attribute.String("authz.scope", scope.String()),
		))
	defer span.End()

	start := time.Now()

	chain, base, err := r.scopeChain(ctx, userID, scope)
	if err != nil {
		return nil, err
	}

	permissions := make(map[string]struct{}, len(base))
	for _, code := range base {
		permissions[code] = struct{}{}
	}

	// Fold from the root of the chain down to the target scope. At each
	// level the union happens first and denies strip last, so a local
	// deny removes inherited allows.
	for i := len(chain) - 1; i >= 0; i-- {
		if err := r.applyScope(ctx, userID, chain[i], permissions); err != nil {
			return nil, err
		}
	}

	roleSummaries, err := r.rolesAt(ctx, userID, scope)
	if err != nil {
		return nil, err
	}

	result := newEffectivePermissions(userID, scope, permissions, roleSummaries)
	r.cache.Set(ctx, key, result)

	r.countResolution("computed")
	if r.metrics != nil {
		r.metrics.ResolutionDuration.WithLabelValues("computed").Observe(time.Since(start).Seconds())
		r.metrics.ResolutionDepth.Observe(float64(len(chain)))
	}

	return result, nil
}

// Check resolves and applies the wildcard matcher against one required code.
func (r *Resolver) Check(ctx context.Context, userID string, scope scopes.Scope, required string) (bool, error) {
	ep, err := r.Resolve(ctx, userID, scope)
	if err != nil {
		return false, err
	}
	return ep.Has(required), nil
}

// scopeChain walks parents from the target up to the hierarchy root,
// returning the chain target-first. The walk stops early at a cached
// ancestor, whose permissions seed the fold; it is bounded by
// scopes.MaxDepth and stops on a repeated scope, so a corrupt cyclic
// hierarchy degrades to a truncated chain instead of looping.
func (r *Resolver) scopeChain(ctx context.Context, userID string, scope scopes.Scope) ([]scopes.Scope, []string, error) {
	chain := []scopes.Scope{scope}
	seen := map[scopes.Scope]bool{scope: true}

	current := scope
	for len(chain) < scopes.MaxDepth {
		parent, ok, err := r.directory.ParentOf(ctx, current)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up parent of %s: %w", current, err)
		}
		if !ok {
			break
		}
		if seen[parent] {
			break
		}

		if cached, hit := r.cache.Get(ctx, CacheKey(userID, parent)); hit {
			return chain, cached.Permissions, nil
		}

		chain = append(chain, parent)
		seen[parent] = true
		current = parent
	}

	return chain, nil, nil
}

// applyScope folds one scope's contributions into the permission set:
// role-derived codes and ALLOW grants join the set, then DENY grants strip.
func (r *Resolver) applyScope(ctx context.Context, userID string, scope scopes.Scope, permissions map[string]struct{}) error {
	codes, err := r.assignments.GetUserPermissionCodes(ctx, userID, scope)
	if err != nil {
		return err
	}
	for _, code := range codes {
		permissions[code] = struct{}{}
	}

	grants, err := r.grants.GetUserGrants(ctx, userID, &scope)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.GrantType == GrantAllow {
			permissions[g.PermissionCode] = struct{}{}
		}
	}
	for _, g := range grants {
		if g.GrantType == GrantDeny {
			delete(permissions, g.PermissionCode)
		}
	}

	return nil
}

// rolesAt returns summaries of the user's assignments at exactly the target
// scope. Parent scopes contribute permissions, not role membership.
func (r *Resolver) rolesAt(ctx context.Context, userID string, scope scopes.Scope) ([]RoleSummary, error) {
	assignments, err := r.assignments.GetUserAssignments(ctx, userID, &scope)
	if err != nil {
		return nil, err
	}

	summaries := make([]RoleSummary, 0, len(assignments))
	for _, a := range assignments {
		summaries = append(summaries, RoleSummary{
			RoleID:   a.RoleID,
			RoleName: a.RoleName,
			RoleSlug: a.RoleSlug,
		})
	}
	return summaries, nil
}

func (r *Resolver) countResolution(source string) {
	if r.metrics != nil {
		r.metrics.ResolutionsTotal.WithLabelValues(source).Inc()
	}
}

func (r *Resolver) countCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.CacheHitsTotal.WithLabelValues("resolution").Inc()
	} else {
		r.metrics.CacheMissesTotal.WithLabelValues("resolution").Inc()
	}
}
