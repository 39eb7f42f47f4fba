package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
)

// PKCE holds the values for one authorization attempt. The verifier and the
// derived values are never reused across attempts; the server side never
// stores them.
type PKCE struct {
	Verifier  string // ≥43 chars base64url (256 bits of entropy)
	Challenge string // BASE64URL(SHA256(verifier))
	State     string
	Nonce     string
}

// NewPKCE generates a fresh verifier/challenge pair plus independent state
// and nonce values. Fails only when the randomness source is unavailable.
func NewPKCE() (PKCE, error) {
	verifier, err := GenerateToken(TokenSize256)
	if err != nil {
		return PKCE{}, err
	}

	state, err := GenerateToken(TokenSize128)
	if err != nil {
		return PKCE{}, err
	}

	nonce, err := GenerateToken(TokenSize128)
	if err != nil {
		return PKCE{}, err
	}

	return PKCE{
		Verifier:  verifier,
		Challenge: S256Challenge(verifier),
		State:     state,
		Nonce:     nonce,
	}, nil
}

// S256Challenge derives the S256 code challenge for a verifier per RFC 7636.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
