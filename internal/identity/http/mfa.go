package http

import (
	"net/http"

	"github.com/crestvale/identity/internal/identity/service"
	"github.com/crestvale/identity/pkg/apierr"
	"github.com/crestvale/identity/pkg/httpx"
	"github.com/crestvale/identity/pkg/slogx"
)

// MFAHandler serves factor enrollment, removal and the read-only step-up
// posture endpoints. All routes require an application bearer token; the
// mutating ones additionally carry the caller's backing-service session.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleEnabled handles GET /v1/auth/mfa/enabled
//
//	@Summary		Check step-up posture
//	@Description	Reports whether the authenticated user has an active factor.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	EnabledResponse	"Enabled flag and active factor id"
//	@Failure		401	{object}	apierr.Error	"Invalid or missing access token"
//	@Router			/v1/auth/mfa/enabled [get].
func (h *MFAHandler) HandleEnabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		apierr.ErrUnauthorized.WriteError(w)
		return
	}

	enabled, factorID, err := h.MFAService.Enabled(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, EnabledResponse{
		Enabled:     enabled,
		MFAFactorID: factorID,
	})
}

// HandleStatus handles GET /v1/auth/mfa/status
//
//	@Summary		Full step-up status
//	@Description	Returns the enrollment flag, the active factor and all factor projections for the authenticated user.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	StatusResponse	"Step-up posture and factor projections"
//	@Failure		401	{object}	apierr.Error	"Invalid or missing access token"
//	@Router			/v1/auth/mfa/status [get].
func (h *MFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		apierr.ErrUnauthorized.WriteError(w)
		return
	}

	status, factors, err := h.MFAService.Status(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := StatusResponse{
		MFAEnabled:  status.Enrolled,
		FactorCount: len(factors),
		Factors:     make([]FactorResponse, 0, len(factors)),
	}
	for _, f := range factors {
		out.Factors = append(out.Factors, factorResponse(f))
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleFactors handles GET /v1/auth/mfa/factors
//
//	@Summary		List factor records
//	@Description	Read-only projection of the authenticated user's factor records. Pass activeOnly=false to include inactive factors.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Param			activeOnly	query		bool			false	"Only active factors (default true)"
//	@Success		200			{object}	[]FactorResponse
//	@Failure		401			{object}	apierr.Error	"Invalid or missing access token"
//	@Router			/v1/auth/mfa/factors [get].
func (h *MFAHandler) HandleFactors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		apierr.ErrUnauthorized.WriteError(w)
		return
	}

	activeOnly := r.URL.Query().Get("activeOnly") != "false"

	factors, err := h.MFAService.List(ctx, userID, activeOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]FactorResponse, 0, len(factors))
	for _, f := range factors {
		out = append(out, factorResponse(f))
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleEnroll handles POST /v1/auth/mfa/enroll
//
//	@Summary		Enroll a TOTP factor
//	@Description	Requests a new TOTP factor from the backing service using the caller's own session and returns the one-time provisioning payload.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		EnrollRequest	true	"Session tokens and optional friendly name"
//	@Success		200		{object}	EnrollResponse	"Secret, URI and QR code (shown once)"
//	@Failure		400		{object}	apierr.Error	"Session tokens missing"
//	@Failure		401		{object}	apierr.Error	"Session invalid or expired"
//	@Failure		409		{object}	apierr.Error	"An active factor is already enrolled"
//	@Router			/v1/auth/mfa/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		apierr.ErrUnauthorized.WriteError(w)
		return
	}

	var req EnrollRequest
	if !decodeValid(w, r, &req) {
		return
	}
	tokens := httpx.ExtractSessionTokens(r, req.SessionTokens)

	material, err := h.MFAService.Enroll(ctx, userID, tokens, req.FriendlyName)
	if err != nil {
		log.Warn("factor enrollment failed", "user_id", userID, "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, EnrollResponse{
		FactorID: material.FactorID,
		Secret:   material.Secret,
		URI:      material.URI,
		QRCode:   material.QRCode,
	})
}

// HandleUnenroll handles POST /v1/auth/mfa/unenroll
//
//	@Summary		Remove a TOTP factor
//	@Description	Removes the factor at the backing service and deletes the local record. FactorID may be omitted to resolve the single active factor.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		UnenrollRequest	true	"Session tokens and optional factor id"
//	@Success		204		"Factor removed"
//	@Failure		401		{object}	apierr.Error	"Session invalid or expired"
//	@Failure		404		{object}	apierr.Error	"No matching factor"
//	@Router			/v1/auth/mfa/unenroll [post].
func (h *MFAHandler) HandleUnenroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		apierr.ErrUnauthorized.WriteError(w)
		return
	}

	var req UnenrollRequest
	if !decodeValid(w, r, &req) {
		return
	}
	tokens := httpx.ExtractSessionTokens(r, req.SessionTokens)

	if err := h.MFAService.Unenroll(ctx, userID, tokens, req.FactorID); err != nil {
		log.Warn("factor removal failed", "user_id", userID, "err", err)
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
