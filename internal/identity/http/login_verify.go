package http

import (
	"errors"
	"net/http"

	"github.com/crestvale/identity/internal/identity/service"
	"github.com/crestvale/identity/pkg/apierr"
	"github.com/crestvale/identity/pkg/httpx"
	"github.com/crestvale/identity/pkg/slogx"
)

// LoginVerifyHandler finalizes deferred logins for MFA-required accounts.
// The endpoint is public: a prior login step already identified the user
// but withheld the final token pending a code.
type LoginVerifyHandler struct {
	StepUpService *service.StepUpService
}

// HandleLoginVerify handles POST /v1/auth/mfa/login-verify
//
//	@Summary		Verify a deferred login
//	@Description	Opens a server-side challenge for the user's active factor, verifies the code, and mints the application token at aal2.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginVerifyRequest	true	"User id and TOTP code"
//	@Success		200		{object}	LoginVerifyResponse	"Application token at aal2"
//	@Failure		400		{object}	apierr.Error		"No enrolled factor or challenge creation failed"
//	@Failure		401		{object}	apierr.Error		"Code verification failed"
//	@Failure		403		{object}	apierr.Error		"Account is deactivated"
//	@Failure		404		{object}	apierr.Error		"No matching user"
//	@Router			/v1/auth/mfa/login-verify [post].
func (h *LoginVerifyHandler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req LoginVerifyRequest
	if !decodeValid(w, r, &req) {
		return
	}

	pair, err := h.StepUpService.LoginVerify(ctx, req.UserID, req.Code)
	if err != nil {
		log.Warn("login verification failed", "user_id", req.UserID, "err", err)
		// An account reaching this endpoint without a factor is a
		// misconfigured state, not a missing resource.
		if errors.Is(err, service.ErrNoFactor) {
			apierr.New(apierr.ErrBadRequest, "account has no enrolled factor").WriteError(w)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, LoginVerifyResponse{
		AppToken: pair.AccessToken,
		AAL:      pair.AAL,
	})
}
