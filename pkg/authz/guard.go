package authz

import (
	"context"
	"fmt"

	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// EscalationGuard decides whether an actor may run a mutating operation
// against a target scope or user. Rank comparison fails closed: an unknown
// scope type ranks zero and can never reach above itself.
type EscalationGuard struct {
	directory scopes.Directory
	metrics   *observability.Metrics
}

// NewEscalationGuard creates a guard backed by the hierarchy directory.
// metrics may be nil.
func NewEscalationGuard(directory scopes.Directory, metrics *observability.Metrics) *EscalationGuard {
	return &EscalationGuard{directory: directory, metrics: metrics}
}

// CanOperateInScope reports whether the actor's own scope dominates the
// target: the target's rank must not exceed the actor's, and the target
// instance must be the actor's scope or a descendant of it.
func (g *EscalationGuard) CanOperateInScope(ctx context.Context, actor Actor, target scopes.Scope) (bool, error) {
	actorScope := actor.DefaultScope()

	if target.Type.Rank() > actorScope.Type.Rank() {
		g.countDenial("scope_rank")
		return false, nil
	}

	ok, err := g.directory.IsDescendant(ctx, actorScope, target)
	if err != nil {
		return false, fmt.Errorf("failed to check scope ancestry: %w", err)
	}
	if !ok {
		g.countDenial("hierarchy")
	}
	return ok, nil
}

// CanManageUser reports whether the actor may affect the target user,
// independent of scope rank.
func (g *EscalationGuard) CanManageUser(ctx context.Context, actor Actor, targetUserID string) (bool, error) {
	if actor.UserID == targetUserID {
		return true, nil
	}

	ok, err := g.directory.CanManageUser(ctx, actor.UserID, targetUserID)
	if err != nil {
		return false, fmt.Errorf("failed to check user manageability: %w", err)
	}
	if !ok {
		g.countDenial("user_management")
	}
	return ok, nil
}

// Authorize runs both checks and converts a denial into ErrForbidden. An
// empty targetUserID skips the user check, for operations that only touch
// role or grant definitions.
func (g *EscalationGuard) Authorize(ctx context.Context, actor Actor, target scopes.Scope, targetUserID string) error {
	ok, err := g.CanOperateInScope(ctx, actor, target)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError(fmt.Sprintf("actor %s may not operate in scope %s", actor.UserID, target))
	}

	if targetUserID != "" {
		ok, err = g.CanManageUser(ctx, actor, targetUserID)
		if err != nil {
			return err
		}
		if !ok {
			return ForbiddenError(fmt.Sprintf("actor %s may not manage user %s", actor.UserID, targetUserID))
		}
	}

	return nil
}

func (g *EscalationGuard) countDenial(reason string) {
	if g.metrics != nil {
		g.metrics.GuardDenialsTotal.WithLabelValues("authorize", reason).Inc()
	}
}
