package http

import (
	"time"

	"github.com/crestvale/identity/internal/identity/domain"
	"github.com/crestvale/identity/pkg/httpx"
)

// AuthorizeURLRequest starts a federated login. RedirectURI is only needed
// when the provider has more than one registered redirect for this client.
type AuthorizeURLRequest struct {
	RedirectURI string `json:"redirectUri,omitempty" validate:"omitempty,url"`
}

// AuthorizeURLResponse carries the provider authorization URL plus the
// client-held flow parameters that must round-trip to the callback.
type AuthorizeURLResponse struct {
	AuthURL      string `json:"authUrl"`
	State        string `json:"state"`
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"codeVerifier"`
}

// CallbackRequest redeems the authorization code from the provider redirect.
type CallbackRequest struct {
	Code         string `json:"code" validate:"required"`
	CodeVerifier string `json:"codeVerifier" validate:"required"`
	Nonce        string `json:"nonce" validate:"required"`
	RedirectURI  string `json:"redirectUri,omitempty" validate:"omitempty,url"`
}

// TokenPairResponse is a bearer token set returned to the caller.
type TokenPairResponse struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	AAL          string     `json:"aal"`
}

// IdentityResponse is the verified federated identity.
type IdentityResponse struct {
	Subject       string `json:"subject"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// CallbackResponse is the provider token set plus the verified identity.
// The caller holds both until it posts complete-registration.
type CallbackResponse struct {
	Tokens   TokenPairResponse `json:"tokens"`
	IDToken  string            `json:"idToken"`
	Identity IdentityResponse  `json:"identity"`
}

// CompleteRegistrationRequest links a verified identity to a new local user.
type CompleteRegistrationRequest struct {
	Identity struct {
		Subject       string `json:"subject" validate:"required"`
		Email         string `json:"email" validate:"required,email"`
		EmailVerified bool   `json:"emailVerified"`
		Name          string `json:"name,omitempty"`
		Picture       string `json:"picture,omitempty"`
	} `json:"identity" validate:"required"`
	DisplayName   string `json:"displayName,omitempty" validate:"omitempty,max=120"`
	TermsAccepted bool   `json:"termsAccepted"`
}

// UserResponse is the caller-facing projection of a local user record.
type UserResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	DisplayName   string  `json:"displayName,omitempty"`
	Role          string  `json:"role"`
	Active        bool    `json:"active"`
	WalletAddress *string `json:"walletAddress"`
}

// RegistrationResponse is the composite outcome of a completed
// registration. WalletAddress and BackingSession are null when their
// provisioning step degraded; Degraded names what failed.
type RegistrationResponse struct {
	User           UserResponse       `json:"user"`
	AppToken       string             `json:"appToken"`
	WalletAddress  *string            `json:"walletAddress"`
	BackingSession *TokenPairResponse `json:"backingSession"`
	Degraded       []string           `json:"degraded,omitempty"`
}

// EnrollRequest asks for a new TOTP factor using the caller's own
// backing-service session. Tokens may also arrive via the session headers.
type EnrollRequest struct {
	SessionTokens httpx.SessionTokens `json:"sessionTokens"`
	FriendlyName  string              `json:"friendlyName,omitempty" validate:"omitempty,max=64"`
}

// EnrollResponse is the one-time TOTP provisioning payload.
type EnrollResponse struct {
	FactorID string `json:"factorId"`
	Secret   string `json:"secret"`
	URI      string `json:"uri"`
	QRCode   string `json:"qrCode"`
}

// UnenrollRequest removes a factor. FactorID may be omitted to resolve the
// caller's single active factor.
type UnenrollRequest struct {
	SessionTokens httpx.SessionTokens `json:"sessionTokens"`
	FactorID      string              `json:"factorId,omitempty"`
}

// ChallengeRequest opens a step-up challenge against a factor.
type ChallengeRequest struct {
	SessionTokens httpx.SessionTokens `json:"sessionTokens"`
	FactorID      string              `json:"factorId,omitempty"`
}

// ChallengeResponse is an open challenge awaiting a code. Expiry is owned
// by the backing service and only surfaced here.
type ChallengeResponse struct {
	ChallengeID string    `json:"challengeId"`
	FactorID    string    `json:"factorId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// VerifyRequest submits a TOTP code against an open challenge.
type VerifyRequest struct {
	SessionTokens httpx.SessionTokens `json:"sessionTokens"`
	FactorID      string              `json:"factorId" validate:"required"`
	ChallengeID   string              `json:"challengeId" validate:"required"`
	Code          string              `json:"code" validate:"required,numeric,len=6"`
}

// LoginVerifyRequest finalizes a deferred login for an MFA-required
// account. Public endpoint; the user was identified by a prior login step.
type LoginVerifyRequest struct {
	UserID string `json:"userId" validate:"required"`
	Code   string `json:"code" validate:"required,numeric,len=6"`
}

// LoginVerifyResponse carries the application's own signed token at aal2.
type LoginVerifyResponse struct {
	AppToken string `json:"appToken"`
	AAL      string `json:"aal"`
}

// EnabledResponse is the minimal step-up posture check.
type EnabledResponse struct {
	Enabled     bool    `json:"enabled"`
	MFAFactorID *string `json:"mfaFactorId"`
}

// FactorResponse is the caller-facing projection of a factor record.
type FactorResponse struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	FriendlyName string     `json:"friendlyName,omitempty"`
	Active       bool       `json:"active"`
	EnrolledAt   time.Time  `json:"enrolledAt"`
	LastUsedAt   *time.Time `json:"lastUsedAt"`
}

// StatusResponse is the full step-up posture including factor projections.
type StatusResponse struct {
	MFAEnabled  bool             `json:"mfaEnabled"`
	FactorCount int              `json:"factorCount"`
	Factors     []FactorResponse `json:"factors"`
}

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Database   string `json:"database,omitempty"`
	Federation string `json:"federation,omitempty"`
}

// HealthResponse is returned by the liveness and readiness probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

func factorResponse(f domain.MFAFactor) FactorResponse {
	return FactorResponse{
		ID:           f.ID,
		Type:         f.Type,
		FriendlyName: f.FriendlyName,
		Active:       f.Active,
		EnrolledAt:   f.EnrolledAt,
		LastUsedAt:   f.LastUsedAt,
	}
}

func tokenPairResponse(t domain.TokenPair) TokenPairResponse {
	out := TokenPairResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		AAL:          t.AAL,
	}
	if !t.ExpiresAt.IsZero() {
		exp := t.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Role:          u.Role,
		Active:        u.Active,
		WalletAddress: u.WalletAddress,
	}
}
