// Package apperr defines the error taxonomy shared by every layer. The
// sentinel values let handlers and client integrations branch on the kind
// of failure rather than on message text. Wrap them with fmt.Errorf and %w
// to add context; errors.Is keeps working through the wrapping.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated is returned when a protected operation is reached
	// without a usable access token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the caller is authenticated but the
	// role lacks a required capability.
	ErrForbidden = errors.New("forbidden")

	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenKindMismatch  = errors.New("token kind mismatch")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Business precondition violations.
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidProperty = errors.New("invalid property")
	ErrInvalidValue    = errors.New("invalid value")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrDivisionUndefined is returned by growth computation when the
	// initial value is zero.
	ErrDivisionUndefined = errors.New("division undefined")

	ErrDuplicateEmail = errors.New("email already exists")
	// ErrConflict signals that the operation cannot proceed because of
	// existing state, e.g. deleting a property that has investments.
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable wraps infrastructure failures: timeouts, dropped
	// connections, an unreachable database.
	ErrStoreUnavailable = errors.New("store unavailable")
)

type kind struct {
	err    error
	code   string
	status int
}

// kinds is ordered; the first match wins.
var kinds = []kind{
	{ErrUnauthenticated, "unauthenticated", http.StatusUnauthorized},
	{ErrTokenExpired, "token_expired", http.StatusUnauthorized},
	{ErrTokenInvalid, "token_invalid", http.StatusUnauthorized},
	{ErrTokenKindMismatch, "token_kind_mismatch", http.StatusUnauthorized},
	{ErrInvalidCredentials, "invalid_credentials", http.StatusUnauthorized},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrDuplicateEmail, "duplicate_email", http.StatusConflict},
	{ErrConflict, "conflict", http.StatusConflict},
	{ErrInvalidRole, "invalid_role", http.StatusUnprocessableEntity},
	{ErrInvalidProperty, "invalid_property", http.StatusUnprocessableEntity},
	{ErrInvalidValue, "invalid_value", http.StatusUnprocessableEntity},
	{ErrInvalidInput, "invalid_input", http.StatusUnprocessableEntity},
	{ErrDivisionUndefined, "division_undefined", http.StatusUnprocessableEntity},
	{ErrStoreUnavailable, "store_unavailable", http.StatusServiceUnavailable},
}

func lookup(err error) (kind, bool) {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k, true
		}
	}
	return kind{}, false
}

// Code returns the stable machine-readable code for err, or "internal"
// when err does not belong to the taxonomy.
func Code(err error) string {
	if k, ok := lookup(err); ok {
		return k.code
	}
	return "internal"
}

// HTTPStatus maps err to the documented HTTP status. Unknown errors map to
// 500.
func HTTPStatus(err error) int {
	if k, ok := lookup(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// Known reports whether err belongs to the taxonomy.
func Known(err error) bool {
	_, ok := lookup(err)
	return ok
}
