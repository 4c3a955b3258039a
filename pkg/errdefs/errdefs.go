// Package errdefs defines the error taxonomy shared between the permission
// engine and its transport layer. The engine wraps these sentinels; the
// transport maps them to status codes without importing the engine.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced permission, role, grant, or assignment
	// does not exist or is soft-deleted.
	ErrNotFound = errors.New("authz: not found")

	// ErrConflict means a permission code or role slug already exists in its
	// uniqueness scope.
	ErrConflict = errors.New("authz: already exists")

	// ErrInvalidOperation means a protected system role was targeted by a
	// mutation it does not allow, or the request itself was malformed.
	ErrInvalidOperation = errors.New("authz: invalid operation")

	// ErrForbidden means the scope escalation guard or the user-management
	// check denied the operation.
	ErrForbidden = errors.New("authz: forbidden")
)

// NotFound wraps ErrNotFound with the entity that was missing.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// Conflict wraps ErrConflict with the conflicting value.
func Conflict(entity, value string) error {
	return fmt.Errorf("%w: %s %s", ErrConflict, entity, value)
}

// InvalidOperation wraps ErrInvalidOperation with a reason.
func InvalidOperation(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, reason)
}

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}
