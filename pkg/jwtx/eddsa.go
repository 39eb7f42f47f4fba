package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs application token claims.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
}

// Verifier verifies a compact JWT and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// KeyPair is an Ed25519 signing key with its identifier. It implements both
// Signer and Verifier for the single-key setup this service runs with.
type KeyPair struct {
	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewKeyPair generates a fresh Ed25519 key pair. Tokens signed with an
// ephemeral key do not survive process restarts, which is acceptable for
// short-lived access tokens.
func NewKeyPair(kid string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate ed25519 key: %w", err)
	}
	return &KeyPair{kid: kid, priv: priv, pub: pub}, nil
}

// NewKeyPairFromSeed builds a key pair from a 32-byte seed. Used when the
// signing key must be stable across replicas.
func NewKeyPairFromSeed(kid string, seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("jwtx: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{
		kid:  kid,
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

func (k *KeyPair) Alg() string { return "EdDSA" }
func (k *KeyPair) KID() string { return k.kid }

// Sign produces a compact EdDSA-signed JWT for the claims.
func (k *KeyPair) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = k.kid

	signed, err := token.SignedString(k.priv)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and verifies a compact JWT signed by this key pair.
func (k *KeyPair) Verify(raw string) (Claims, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return k.pub, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrSignature
		default:
			return Claims{}, ErrMalformed
		}
	}
	if !token.Valid {
		return Claims{}, ErrSignature
	}

	return claims, nil
}
