package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// PlaceholderCredentialSecret is the development default for the server-side
// derivation secret. Production startup must refuse it.
const PlaceholderCredentialSecret = "insecure-dev-credential-secret"

var ErrPlaceholderSecret = errors.New("cryptox: credential secret is the insecure placeholder")

// DeriveBackingCredential derives the deterministic secret used to
// authenticate a federated user against the backing authentication service:
// HMAC-SHA256(serverSecret, federatedSubject), base64url encoded.
//
// The derived value is never sent to the client. It exists so the application
// can act on the user's behalf without keeping a second credential store.
func DeriveBackingCredential(serverSecret, federatedSubject string) string {
	mac := hmac.New(sha256.New, []byte(serverSecret))
	mac.Write([]byte(federatedSubject))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateCredentialSecret rejects empty or placeholder derivation secrets.
// Non-development environments must not start with either.
func ValidateCredentialSecret(secret string) error {
	if secret == "" || secret == PlaceholderCredentialSecret {
		return ErrPlaceholderSecret
	}
	return nil
}
