package authz

import "github.com/gatehouse-io/gatehouse/pkg/errdefs"

// The engine surfaces exactly four kinds of structured errors, defined in
// pkg/errdefs so the transport layer can map them to status codes without
// importing the engine. Re-exported here for call-site brevity.
var (
	ErrNotFound         = errdefs.ErrNotFound
	ErrConflict         = errdefs.ErrConflict
	ErrInvalidOperation = errdefs.ErrInvalidOperation
	ErrForbidden        = errdefs.ErrForbidden
)

// NotFoundError wraps ErrNotFound with the entity that was missing.
func NotFoundError(entity, id string) error {
	return errdefs.NotFound(entity, id)
}

// ConflictError wraps ErrConflict with the conflicting value.
func ConflictError(entity, value string) error {
	return errdefs.Conflict(entity, value)
}

// InvalidOperationError wraps ErrInvalidOperation with a reason.
func InvalidOperationError(reason string) error {
	return errdefs.InvalidOperation(reason)
}

// ForbiddenError wraps ErrForbidden with a reason.
func ForbiddenError(reason string) error {
	return errdefs.Forbidden(reason)
}
