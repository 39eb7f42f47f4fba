package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crestvale/identity/internal/identity/service"
	"github.com/crestvale/identity/internal/identity/wallet"
	"github.com/crestvale/identity/pkg/apierr"
	"github.com/crestvale/identity/pkg/authkit"
	"github.com/crestvale/identity/pkg/slogx"
	"github.com/crestvale/identity/pkg/validatex"
)

// decodeValid decodes the JSON body into req and validates it. On failure
// it writes the error response and returns false.
func decodeValid(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		apierr.New(apierr.ErrBadRequest, "invalid JSON body").WriteError(w)
		return false
	}
	if err := validatex.Validate(req); err != nil {
		apierr.New(apierr.ErrBadRequest, err.Error()).WriteError(w)
		return false
	}
	return true
}

// writeServiceError maps a service sentinel to its API taxonomy kind and
// writes it. Unmapped errors are logged and surfaced as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	out := mapServiceError(err)
	if out == apierr.ErrInternal {
		slogx.FromContext(r.Context()).Error("unexpected service error", "err", err)
	}
	out.WriteError(w)
}

func mapServiceError(err error) *apierr.Error {
	switch {
	case errors.Is(err, service.ErrFederationNotReady):
		return apierr.ErrNotReady
	case errors.Is(err, service.ErrExchangeRejected):
		return apierr.New(apierr.ErrBadRequest, "authorization code was rejected by the provider")
	case errors.Is(err, service.ErrReplayOrTamper):
		return apierr.New(apierr.ErrUnauthorized, "nonce validation failed")
	case errors.Is(err, service.ErrProviderDown):
		return apierr.ErrProviderUnavailable
	case errors.Is(err, service.ErrRedirectNotAllowed):
		return apierr.New(apierr.ErrBadRequest, "redirect URI is not permitted")

	case errors.Is(err, service.ErrTermsNotAccepted):
		return apierr.New(apierr.ErrBadRequest, "terms of service must be accepted")
	case errors.Is(err, service.ErrMissingIdentity):
		return apierr.New(apierr.ErrBadRequest, "federated identity is incomplete")
	case errors.Is(err, service.ErrAlreadyRegistered):
		return apierr.New(apierr.ErrConflict, "an account already exists for this email")

	case errors.Is(err, service.ErrMissingTokens):
		return apierr.New(apierr.ErrBadRequest, "session tokens are required")
	case errors.Is(err, service.ErrSessionStale):
		return apierr.ErrSessionExpired
	case errors.Is(err, service.ErrSessionInvalid):
		return apierr.ErrUnauthorized
	case errors.Is(err, service.ErrAlreadyEnrolled):
		return apierr.New(apierr.ErrConflict, "an active factor is already enrolled")
	case errors.Is(err, service.ErrNoFactor):
		return apierr.New(apierr.ErrNotFound, "no matching factor")
	case errors.Is(err, service.ErrUserNotFound):
		return apierr.New(apierr.ErrNotFound, "no matching user")
	case errors.Is(err, service.ErrInvalidCode):
		// Wrong codes and expired challenges are authentication failures:
		// assurance must not upgrade and the caller retries with a new code.
		return apierr.New(apierr.ErrUnauthorized, "code verification failed")

	case errors.Is(err, service.ErrAccountDisabled):
		return apierr.New(apierr.ErrForbidden, "account is deactivated")
	case errors.Is(err, service.ErrChallengeFailure):
		return apierr.New(apierr.ErrBadRequest, "could not open a verification challenge")

	case errors.Is(err, authkit.ErrUnavailable), errors.Is(err, wallet.ErrUnavailable):
		return apierr.ErrProviderUnavailable
	default:
		return apierr.ErrInternal
	}
}
