// Package apierr defines the error kinds shared by every layer of the API.
//
// Stores and handlers wrap one of the sentinel errors with context:
//
//	return fmt.Errorf("%w: role %s", apierr.ErrNotFound, id)
//
// and the HTTP layer maps the kind to a status code with Status. A tenant
// mismatch and a genuinely absent row both produce ErrNotFound, so callers
// can never tell them apart.
package apierr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated means no identity could be resolved for the caller.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the caller lacks the capability a route requires.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrNotFound covers absent rows and rows owned by another provider.
	ErrNotFound = errors.New("not found")

	// ErrValidation means malformed input, detected before storage is touched.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means a uniqueness rule was violated.
	ErrConflict = errors.New("resource conflict")

	// ErrBadRequest means well-formed input broke a business or referential rule.
	ErrBadRequest = errors.New("bad request")
)

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message for err. Infrastructure errors
// are reduced to a generic message so driver details never leak.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
