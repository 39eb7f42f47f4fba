package authkit

import "time"

// TokenResponse is the backing service's token grant response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`

	// AAL is the authenticator assurance level of the access token:
	// "aal1" after a password grant, "aal2" after factor verification.
	AAL string `json:"aal,omitempty"`
}

// User is a backing-service account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// SignUpRequest creates a new backing-service account.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Factor is an MFA factor on a backing-service account.
type Factor struct {
	ID           string    `json:"id"`
	Type         string    `json:"factor_type"`
	FriendlyName string    `json:"friendly_name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Factor status values.
const (
	FactorStatusUnverified = "unverified"
	FactorStatusVerified   = "verified"
)

// EnrollFactorRequest begins TOTP enrollment.
type EnrollFactorRequest struct {
	Type         string `json:"factor_type"`
	FriendlyName string `json:"friendly_name,omitempty"`
	Issuer       string `json:"issuer,omitempty"`
}

// EnrollFactorResponse carries the provisioning material for the
// authenticator app. The secret is shown once and never retrievable again.
type EnrollFactorResponse struct {
	ID   string `json:"id"`
	Type string `json:"factor_type"`
	TOTP struct {
		QRCode string `json:"qr_code"`
		Secret string `json:"secret"`
		URI    string `json:"uri"`
	} `json:"totp"`
}

// Challenge is a short-lived proof-of-possession window for a factor.
type Challenge struct {
	ID        string    `json:"id"`
	FactorID  string    `json:"factor_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyRequest submits a one-time code against an open challenge.
type VerifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}
