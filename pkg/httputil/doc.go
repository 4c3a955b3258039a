// Package httputil provides JSON request/response helpers and the mapping
// from the engine's error taxonomy to HTTP status codes.
//
//	var req CreateRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//
//	role, err := service.CreateRole(r.Context(), actor, params)
//	if err != nil {
//		httputil.WriteError(w, err) // 404 / 409 / 400 / 403 per taxonomy
//		return
//	}
//	httputil.WriteCreated(w, role)
package httputil
