// Package apierr defines the error taxonomy shared by the HTTP layer and the
// services behind it. Every failure that crosses the API boundary is one of
// these kinds; descriptions are safe to return to callers, raw upstream
// errors are logged server-side only.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotReady            = "not_ready"
	CodeBadRequest          = "bad_request"
	CodeUnauthorized        = "unauthorized"
	CodeSessionExpired      = "session_expired"
	CodeForbidden           = "forbidden"
	CodeConflict            = "conflict"
	CodeNotFound            = "not_found"
	CodeProviderUnavailable = "provider_unavailable"
	CodeInternal            = "internal_error"
)

// Error is a caller-facing API error with a taxonomy code, an HTTP status and
// a non-leaking description.
type Error struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes e as a JSON response.
func (e *Error) WriteError(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}

// New builds an Error with a custom description while keeping the taxonomy
// code and status of the base kind.
func New(base *Error, description string) *Error {
	return &Error{Status: base.Status, Code: base.Code, Description: description}
}

var (
	// ErrNotReady: a dependency (federation client) has not finished
	// initializing. Callers should retry after a backoff.
	ErrNotReady = &Error{
		Status:      http.StatusServiceUnavailable,
		Code:        CodeNotReady,
		Description: "service dependency is not ready, retry later",
	}

	ErrBadRequest = &Error{
		Status:      http.StatusBadRequest,
		Code:        CodeBadRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrUnauthorized = &Error{
		Status:      http.StatusUnauthorized,
		Code:        CodeUnauthorized,
		Description: "invalid or missing credentials",
	}

	// ErrSessionExpired: the supplied session tokens reference a stale or
	// invalid subject. The caller must re-authenticate, not retry.
	ErrSessionExpired = &Error{
		Status:      http.StatusUnauthorized,
		Code:        CodeSessionExpired,
		Description: "session is no longer valid, sign in again",
	}

	ErrForbidden = &Error{
		Status:      http.StatusForbidden,
		Code:        CodeForbidden,
		Description: "access denied",
	}

	ErrConflict = &Error{
		Status:      http.StatusConflict,
		Code:        CodeConflict,
		Description: "the resource already exists",
	}

	ErrNotFound = &Error{
		Status:      http.StatusNotFound,
		Code:        CodeNotFound,
		Description: "no matching resource",
	}

	ErrProviderUnavailable = &Error{
		Status:      http.StatusBadGateway,
		Code:        CodeProviderUnavailable,
		Description: "an upstream provider is unavailable, retry later",
	}

	ErrInternal = &Error{
		Status:      http.StatusInternalServerError,
		Code:        CodeInternal,
		Description: "internal server error",
	}
)

// From extracts the *Error from err, or wraps err as ErrInternal. The
// original error is never exposed in the returned description.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}
