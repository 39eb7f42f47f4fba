package http

import (
	"net/http"

	"github.com/crestvale/identity/internal/identity/domain"
	"github.com/crestvale/identity/internal/identity/service"
	"github.com/crestvale/identity/pkg/httpx"
	"github.com/crestvale/identity/pkg/slogx"
)

// FederationHandler serves the federated login flow: building the
// authorization URL, redeeming the callback code, and completing
// registration for a verified identity.
type FederationHandler struct {
	Federation   *service.FederationService
	Registration *service.RegistrationService
}

// HandleAuthorizeURL handles POST /v1/auth/federated/authorize-url
//
//	@Summary		Build a federated authorization URL
//	@Description	Builds a provider authorization URL with PKCE, state and nonce. The verifier and nonce are client-held and must round-trip to the callback.
//	@Tags			Federation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AuthorizeURLRequest		false	"Optional explicit redirect URI"
//	@Success		200		{object}	AuthorizeURLResponse	"Authorization URL and flow parameters"
//	@Failure		400		{object}	apierr.Error			"Malformed request"
//	@Failure		503		{object}	apierr.Error			"Issuer discovery has not completed"
//	@Router			/v1/auth/federated/authorize-url [post].
func (h *FederationHandler) HandleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeURLRequest
	if r.ContentLength != 0 && !decodeValid(w, r, &req) {
		return
	}

	ticket, err := h.Federation.AuthorizeURL(req.RedirectURI)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, AuthorizeURLResponse{
		AuthURL:      ticket.URL,
		State:        ticket.State,
		Nonce:        ticket.Nonce,
		CodeVerifier: ticket.CodeVerifier,
	})
}

// HandleCallback handles POST /v1/auth/federated/callback
//
//	@Summary		Redeem a federated authorization code
//	@Description	Exchanges the code with PKCE, verifies the ID token and nonce, and returns the provider token set plus the verified identity.
//	@Tags			Federation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CallbackRequest		true	"Code, verifier and nonce from the redirect"
//	@Success		200		{object}	CallbackResponse	"Provider tokens and verified identity"
//	@Failure		400		{object}	apierr.Error		"Code rejected by the provider"
//	@Failure		401		{object}	apierr.Error		"Nonce validation failed"
//	@Failure		502		{object}	apierr.Error		"Provider unavailable"
//	@Failure		503		{object}	apierr.Error		"Issuer discovery has not completed"
//	@Router			/v1/auth/federated/callback [post].
func (h *FederationHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if !decodeValid(w, r, &req) {
		return
	}

	res, err := h.Federation.Callback(r.Context(), req.Code, req.CodeVerifier, req.Nonce, req.RedirectURI)
	if err != nil {
		slogx.FromContext(r.Context()).Warn("federated callback failed", "err", err)
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, CallbackResponse{
		Tokens:  tokenPairResponse(res.Tokens),
		IDToken: res.IDToken,
		Identity: IdentityResponse{
			Subject:       res.Identity.Subject,
			Email:         res.Identity.Email,
			EmailVerified: res.Identity.EmailVerified,
			Name:          res.Identity.Name,
			Picture:       res.Identity.Picture,
		},
	})
}

// HandleCompleteRegistration handles POST /v1/auth/federated/complete-registration
//
//	@Summary		Complete a federated registration
//	@Description	Creates the local user for a verified identity and best-effort provisions the wallet and backing-auth account. Provisioning failures degrade response fields instead of failing the request.
//	@Tags			Federation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CompleteRegistrationRequest	true	"Verified identity and registration choices"
//	@Success		201		{object}	RegistrationResponse		"New user, app token and provisioning outcome"
//	@Failure		400		{object}	apierr.Error				"Terms not accepted or identity incomplete"
//	@Failure		409		{object}	apierr.Error				"An account already exists for this email"
//	@Router			/v1/auth/federated/complete-registration [post].
func (h *FederationHandler) HandleCompleteRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req CompleteRegistrationRequest
	if !decodeValid(w, r, &req) {
		return
	}

	res, err := h.Registration.CompleteRegistration(ctx, service.CompleteRegistrationInput{
		Identity: domain.FederatedIdentity{
			Subject:       req.Identity.Subject,
			Email:         req.Identity.Email,
			EmailVerified: req.Identity.EmailVerified,
			Name:          req.Identity.Name,
			Picture:       req.Identity.Picture,
		},
		DisplayName:   req.DisplayName,
		TermsAccepted: req.TermsAccepted,
	})
	if err != nil {
		log.Warn("registration failed", "email", req.Identity.Email, "err", err)
		writeServiceError(w, r, err)
		return
	}

	out := RegistrationResponse{
		User:          userResponse(res.User),
		AppToken:      res.AppToken,
		WalletAddress: res.WalletAddress,
		Degraded:      res.Degraded,
	}
	if res.BackingSession != nil {
		bs := tokenPairResponse(*res.BackingSession)
		out.BackingSession = &bs
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, out)
}
