package authz

import (
	"context"
	"net/http"

	"github.com/gatehouse-io/gatehouse/pkg/httputil"
	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// Actor headers. Authentication happens upstream; these headers are trusted
// to have been set by the authenticating proxy.
const (
	HeaderActorUserID    = "X-Actor-User-Id"
	HeaderActorScopeType = "X-Actor-Scope-Type"
	HeaderActorScopeID   = "X-Actor-Scope-Id"
	HeaderActorOrgID     = "X-Actor-Organization-Id"
	HeaderActorClientID  = "X-Actor-Client-Id"
	HeaderActorCompanyID = "X-Actor-Company-Id"
	HeaderActorDeptID    = "X-Actor-Department-Id"
)

type actorContextKey struct{}

// ActorFromHeaders builds the actor from request headers. The zero actor is
// returned when no user header is present.
func ActorFromHeaders(r *http.Request) Actor {
	return Actor{
		UserID: r.Header.Get(HeaderActorUserID),
		Scope: scopes.Scope{
			Type: scopes.Type(r.Header.Get(HeaderActorScopeType)),
			ID:   r.Header.Get(HeaderActorScopeID),
		},
		OrganizationID: r.Header.Get(HeaderActorOrgID),
		ClientID:       r.Header.Get(HeaderActorClientID),
		CompanyID:      r.Header.Get(HeaderActorCompanyID),
		DepartmentID:   r.Header.Get(HeaderActorDeptID),
	}
}

// ActorMiddleware extracts the actor from headers and stores it in the
// request context for handlers and permission guards.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFromHeaders(r)
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the actor stored by ActorMiddleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.UserID != ""
}

// RequireActor returns the request's actor or writes a 401 response.
func RequireActor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "actor identity required")
		return Actor{}, false
	}
	return actor, true
}

// RequirePermission guards a route: the actor must hold the required
// permission at its own scope, resolved through the live resolver, before
// the wrapped handler runs.
func RequirePermission(service *Service, required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := RequireActor(w, r)
			if !ok {
				return
			}

			scope := actor.DefaultScope()
			if err := scope.Validate(); err != nil {
				httputil.WriteBadRequest(w, "actor scope required")
				return
			}

			allowed, err := service.CheckPermission(r.Context(), actor.UserID, scope, required)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, "missing permission "+required)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
