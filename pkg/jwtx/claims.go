package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Assurance levels carried in the application token.
const (
	// AAL1 is a single-factor session (password or federated login only).
	AAL1 = "aal1"
	// AAL2 is a session upgraded by a verified second factor.
	AAL2 = "aal2"
)

// DefaultAccessTokenTTL is the default lifetime of an application token.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims are the application access-token claims. Changes must stay additive
// to preserve compatibility for downstream services.
type Claims struct {
	jwt.RegisteredClaims

	// Role of the authenticated user ("investor", "admin", ...).
	Role string `json:"role,omitempty"`

	// AAL is the authentication assurance level: "aal1" for single-factor,
	// "aal2" after a verified second factor.
	AAL string `json:"aal,omitempty"`

	// Email of the authenticated user.
	Email string `json:"email,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an application token.
func NewAccessClaims(subject, role, email, aal, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        newJTI(),
		},
		Role:  role,
		AAL:   aal,
		Email: email,
	}
}

// newJTI returns a URL-safe random identifier for the "jti" claim.
func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before it is valid (nbf).
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateIssuer checks the issuer claim when an expectation is configured.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}
