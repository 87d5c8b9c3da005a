// Package errs defines the error taxonomy shared by every persona engine
// component. Constructors wrap a sentinel with %w so callers can branch with
// errors.Is while still getting a descriptive message.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound reports an absent persona, capability, role, delegation,
	// lineage record or audit entry.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied reports a failed permission check.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrSecurityRejected reports a prompt that failed the security threshold
	// when the caller asked for hard rejection.
	ErrSecurityRejected = errors.New("security rejected")
	// ErrStorage reports a failure of the persistent store.
	ErrStorage = errors.New("storage failure")
	// ErrNoCandidate reports that no persona met the delegation threshold.
	ErrNoCandidate = errors.New("no qualifying candidate")
	// ErrInvalidTransition reports a delegation status change the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NotFound returns an ErrNotFound with context.
func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

// PermissionDenied returns an ErrPermissionDenied with context.
func PermissionDenied(format string, args ...any) error {
	return wrap(ErrPermissionDenied, format, args...)
}

// Validation returns an ErrValidation with context.
func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

// SecurityRejected returns an ErrSecurityRejected with context.
func SecurityRejected(format string, args ...any) error {
	return wrap(ErrSecurityRejected, format, args...)
}

// InvalidTransition returns an ErrInvalidTransition with context.
func InvalidTransition(format string, args ...any) error {
	return wrap(ErrInvalidTransition, format, args...)
}

// Storage wraps a store error so it matches both ErrStorage and the cause.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the REST status code used by route handlers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoCandidate):
		return http.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrSecurityRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
