package authkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the backing authentication service.
const (
	ErrorCodeInvalidRequest   = "invalid_request"
	ErrorCodeInvalidGrant     = "invalid_grant"
	ErrorCodeUserExists       = "user_already_exists"
	ErrorCodeFactorNotFound   = "factor_not_found"
	ErrorCodeChallengeExpired = "challenge_expired"
	ErrorCodeInvalidCode      = "invalid_code"
	ErrorCodeServerError      = "server_error"
)

// APIError is an error response from the backing service with its code
// preserved.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authkit: %s: %s", e.Code, e.Description)
}

var (
	// ErrInvalidCredentials means the password grant was rejected.
	ErrInvalidCredentials = errors.New("authkit: invalid credentials")

	// ErrUserExists means sign-up collided with an existing account.
	ErrUserExists = errors.New("authkit: user already exists")

	// ErrInvalidCode means the submitted one-time code did not verify.
	ErrInvalidCode = errors.New("authkit: code verification failed")

	// ErrChallengeExpired means the challenge lapsed before verification.
	ErrChallengeExpired = errors.New("authkit: challenge expired")

	// ErrFactorNotFound means the referenced factor does not exist on the
	// backing account.
	ErrFactorNotFound = errors.New("authkit: factor not found")

	// ErrSessionExpired means the session's tokens can no longer be used
	// or refreshed. The caller must re-authenticate.
	ErrSessionExpired = errors.New("authkit: session expired")

	// ErrUnavailable means the backing service could not be reached or
	// answered with a server-side failure.
	ErrUnavailable = errors.New("authkit: backing auth service unavailable")
)

// parseErrorResponse converts a non-2xx response body into a sentinel-wrapped
// *APIError so callers can use errors.Is on the sentinel and errors.As on the
// APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = ErrorCodeServerError
		apiErr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	sentinel := sentinelFor(resp.StatusCode, apiErr.Code)
	if sentinel == nil {
		return apiErr
	}
	return fmt.Errorf("%w: %w", sentinel, apiErr)
}

func sentinelFor(status int, code string) error {
	switch code {
	case ErrorCodeInvalidGrant:
		return ErrInvalidCredentials
	case ErrorCodeUserExists:
		return ErrUserExists
	case ErrorCodeInvalidCode:
		return ErrInvalidCode
	case ErrorCodeChallengeExpired:
		return ErrChallengeExpired
	case ErrorCodeFactorNotFound:
		return ErrFactorNotFound
	}

	switch {
	case status == http.StatusUnauthorized:
		return ErrSessionExpired
	case status >= http.StatusInternalServerError:
		return ErrUnavailable
	}
	return nil
}
