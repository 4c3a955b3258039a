package authz

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gatehouse-io/gatehouse/pkg/httputil"
	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/scopes"
)

// Handler exposes the service over HTTP. The actor is taken from request
// headers by ActorMiddleware; authentication happens upstream.
type Handler struct {
	service *Service
	logger  *observability.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes attaches every endpoint to the router. Mutating routes
// require an actor; reads only need one where noted.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissions", h.RegisterPermission).Methods(http.MethodPost)
	router.HandleFunc("/permissions", h.ListPermissions).Methods(http.MethodGet)
	router.HandleFunc("/permissions/{permissionId}", h.GetPermission).Methods(http.MethodGet)
	router.HandleFunc("/permissions/{permissionId}", h.RemovePermission).Methods(http.MethodDelete)

	router.HandleFunc("/roles", h.CreateRole).Methods(http.MethodPost)
	router.HandleFunc("/roles", h.ListRoles).Methods(http.MethodGet)
	router.HandleFunc("/roles/{roleId}", h.GetRole).Methods(http.MethodGet)
	router.HandleFunc("/roles/{roleId}", h.UpdateRole).Methods(http.MethodPatch)
	router.HandleFunc("/roles/{roleId}", h.DeleteRole).Methods(http.MethodDelete)
	router.HandleFunc("/roles/{roleId}/restore", h.RestoreRole).Methods(http.MethodPost)
	router.HandleFunc("/roles/{roleId}/permissions", h.SetRolePermissions).Methods(http.MethodPut)

	router.HandleFunc("/users/{userId}/roles", h.AssignRole).Methods(http.MethodPost)
	router.HandleFunc("/users/{userId}/roles", h.GetUserRoles).Methods(http.MethodGet)
	router.HandleFunc("/users/{userId}/roles/{roleId}", h.UnassignRole).Methods(http.MethodDelete)

	router.HandleFunc("/users/{userId}/grants", h.GrantPermission).Methods(http.MethodPost)
	router.HandleFunc("/users/{userId}/grants", h.GetUserGrants).Methods(http.MethodGet)
	router.HandleFunc("/users/{userId}/grants/{permissionId}", h.RevokePermission).Methods(http.MethodDelete)

	router.HandleFunc("/users/{userId}/permissions", h.ResolvePermissions).Methods(http.MethodGet)
	router.HandleFunc("/check", h.CheckPermission).Methods(http.MethodPost)
}

// scopeFromQuery reads the scopeType/scopeId query pair. Both must be
// present together.
func scopeFromQuery(r *http.Request) (*scopes.Scope, error) {
	scopeType := httputil.ParseQueryString(r, "scopeType", "")
	scopeID := httputil.ParseQueryString(r, "scopeId", "")
	if scopeType == "" && scopeID == "" {
		return nil, nil
	}
	scope := scopes.Scope{Type: scopes.Type(scopeType), ID: scopeID}
	if err := scope.Validate(); err != nil {
		return nil, InvalidOperationError(err.Error())
	}
	return &scope, nil
}

// --- Permission catalog ---

type registerPermissionRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) RegisterPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}

	var req registerPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := h.service.RegisterPermission(r.Context(), actor, req.Code, req.Name, req.Category, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, perm)
}

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	category := httputil.ParseQueryString(r, "category", "")

	perms, err := h.service.ListPermissions(r.Context(), category)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "permissionId")
	if !ok {
		return
	}

	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, perm)
}

func (h *Handler) RemovePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "permissionId")
	if !ok {
		return
	}

	if err := h.service.RemovePermission(r.Context(), actor, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// --- Roles ---

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}

	var params CreateRoleParams
	if !httputil.ParseJSONOrError(w, r, &params) {
		return
	}

	role, err := h.service.CreateRole(r.Context(), actor, params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, role)
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if scope == nil {
		httputil.WriteBadRequest(w, "scopeType and scopeId are required")
		return
	}

	roles, err := h.service.ListRoles(r.Context(), *scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "roleId")
	if !ok {
		return
	}

	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "roleId")
	if !ok {
		return
	}

	var patch RolePatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	role, err := h.service.UpdateRole(r.Context(), actor, id, patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "roleId")
	if !ok {
		return
	}

	if err := h.service.DeleteRole(r.Context(), actor, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) RestoreRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "roleId")
	if !ok {
		return
	}

	role, err := h.service.RestoreRole(r.Context(), actor, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

type setRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

func (h *Handler) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "roleId")
	if !ok {
		return
	}

	var req setRolePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.SetRolePermissions(r.Context(), actor, id, req.PermissionIDs); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// --- Role assignments ---

type assignRoleRequest struct {
	RoleID    string      `json:"role_id"`
	ScopeType scopes.Type `json:"scope_type"`
	ScopeID   string      `json:"scope_id"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RoleID, "role_id") {
		return
	}

	scope := scopes.Scope{Type: req.ScopeType, ID: req.ScopeID}
	assignment, err := h.service.AssignRole(r.Context(), actor, userID, req.RoleID, scope, req.ExpiresAt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, assignment)
}

func (h *Handler) UnassignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathStringOrError(w, r, "roleId")
	if !ok {
		return
	}
	scope, err := scopeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if scope == nil {
		httputil.WriteBadRequest(w, "scopeType and scopeId are required")
		return
	}

	if err := h.service.UnassignRole(r.Context(), actor, userID, roleID, *scope); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}
	scope, err := scopeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	assignments, err := h.service.GetUserRoles(r.Context(), userID, scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// --- Permission grants ---

type grantRequest struct {
	PermissionID string      `json:"permission_id"`
	ScopeType    scopes.Type `json:"scope_type"`
	ScopeID      string      `json:"scope_id"`
	GrantType    GrantType   `json:"grant_type,omitempty"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Constraints  string      `json:"constraints,omitempty"`
}

func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.PermissionID, "permission_id") {
		return
	}

	grant, err := h.service.GrantPermission(r.Context(), actor, GrantParams{
		UserID:       userID,
		PermissionID: req.PermissionID,
		ScopeType:    req.ScopeType,
		ScopeID:      req.ScopeID,
		GrantType:    req.GrantType,
		ExpiresAt:    req.ExpiresAt,
		Reason:       req.Reason,
		Constraints:  req.Constraints,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, grant)
}

func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := RequireActor(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathStringOrError(w, r, "permissionId")
	if !ok {
		return
	}
	scope, err := scopeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if scope == nil {
		httputil.WriteBadRequest(w, "scopeType and scopeId are required")
		return
	}

	if err := h.service.RevokePermission(r.Context(), actor, userID, permissionID, *scope); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) GetUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}
	scope, err := scopeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	grants, err := h.service.GetUserGrants(r.Context(), userID, scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, grants)
}

// --- Resolution ---

func (h *Handler) ResolvePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}
	scope, err := scopeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if scope == nil {
		httputil.WriteBadRequest(w, "scopeType and scopeId are required")
		return
	}

	ep, err := h.service.Resolve(r.Context(), userID, *scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, ep)
}

type checkRequest struct {
	UserID     string      `json:"user_id"`
	ScopeType  scopes.Type `json:"scope_type"`
	ScopeID    string      `json:"scope_id"`
	Permission string      `json:"permission,omitempty"`
	AnyOf      []string    `json:"any_of,omitempty"`
	AllOf      []string    `json:"all_of,omitempty"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	scope := scopes.Scope{Type: req.ScopeType, ID: req.ScopeID}

	var allowed bool
	var err error
	switch {
	case req.Permission != "":
		allowed, err = h.service.CheckPermission(r.Context(), req.UserID, scope, req.Permission)
	case len(req.AnyOf) > 0:
		allowed, err = h.service.CheckAnyPermission(r.Context(), req.UserID, scope, req.AnyOf...)
	case len(req.AllOf) > 0:
		allowed, err = h.service.CheckAllPermissions(r.Context(), req.UserID, scope, req.AllOf...)
	default:
		httputil.WriteBadRequest(w, "one of permission, any_of or all_of is required")
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, checkResponse{Allowed: allowed})
}
