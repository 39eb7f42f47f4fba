package domain

import "time"

// Provisioning components that can degrade. A registration that cannot
// complete one of these still succeeds; the component is reported so the
// frontend can warn the user instead of parsing logs.
const (
	ComponentWallet      = "wallet"
	ComponentBackingAuth = "backing_auth"
)

// Authenticator assurance levels carried on token pairs.
const (
	AAL1 = "aal1"
	AAL2 = "aal2"
)

// TokenPair is a bearer token set, either from the external provider or
// from the backing auth service.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AAL          string
}

// CallbackResult is the outcome of redeeming a federated callback: the
// provider's token set plus the verified identity. The caller holds both
// until it posts complete-registration.
type CallbackResult struct {
	Tokens   TokenPair
	IDToken  string
	Identity FederatedIdentity
}

// RegistrationResult is the composite outcome of completing a registration.
// WalletAddress and BackingSession are nil when their provisioning step
// degraded; Degraded names the components that failed.
type RegistrationResult struct {
	User           User
	AppToken       string
	WalletAddress  *string
	BackingSession *TokenPair
	Degraded       []string
}
