package http

import (
	"net/http"

	"github.com/crestvale/identity/internal/identity/service"
	"github.com/crestvale/identity/pkg/apierr"
	"github.com/crestvale/identity/pkg/httpx"
	"github.com/crestvale/identity/pkg/slogx"
)

// ChallengeHandler serves the step-up challenge and verify endpoints for
// callers holding their own backing-service session.
type ChallengeHandler struct {
	ChallengeService *service.ChallengeService
}

// HandleChallenge handles POST /v1/auth/mfa/challenge
//
//	@Summary		Open a step-up challenge
//	@Description	Opens a challenge against the caller's factor. The challenge is owned and timed by the backing service; its expiry is surfaced, not tracked.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ChallengeRequest	true	"Session tokens and optional factor id"
//	@Success		200		{object}	ChallengeResponse	"Open challenge awaiting a code"
//	@Failure		401		{object}	apierr.Error		"Session invalid or expired"
//	@Failure		404		{object}	apierr.Error		"No matching factor"
//	@Router			/v1/auth/mfa/challenge [post].
func (h *ChallengeHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		apierr.ErrUnauthorized.WriteError(w)
		return
	}

	var req ChallengeRequest
	if !decodeValid(w, r, &req) {
		return
	}
	tokens := httpx.ExtractSessionTokens(r, req.SessionTokens)

	ticket, err := h.ChallengeService.Challenge(ctx, userID, tokens, req.FactorID)
	if err != nil {
		log.Warn("challenge creation failed", "user_id", userID, "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, ChallengeResponse{
		ChallengeID: ticket.ChallengeID,
		FactorID:    ticket.FactorID,
		ExpiresAt:   ticket.ExpiresAt,
	})
}

// HandleVerify handles POST /v1/auth/mfa/verify
//
//	@Summary		Verify a step-up challenge
//	@Description	Submits a TOTP code against an open challenge. On success the backing service issues a new token pair at aal2.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		VerifyRequest		true	"Factor, challenge and code"
//	@Success		200		{object}	TokenPairResponse	"New token pair at aal2"
//	@Failure		401		{object}	apierr.Error		"Wrong code, expired challenge, or invalid session"
//	@Router			/v1/auth/mfa/verify [post].
func (h *ChallengeHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		apierr.ErrUnauthorized.WriteError(w)
		return
	}

	var req VerifyRequest
	if !decodeValid(w, r, &req) {
		return
	}
	tokens := httpx.ExtractSessionTokens(r, req.SessionTokens)

	pair, err := h.ChallengeService.Verify(ctx, userID, tokens, req.FactorID, req.ChallengeID, req.Code)
	if err != nil {
		log.Warn("challenge verification failed", "user_id", userID, "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, tokenPairResponse(pair))
}
