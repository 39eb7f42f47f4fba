package oidcx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Identity is the verified identity extracted from the provider's ID token
// and userinfo endpoint.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// ExchangeRequest carries the callback parameters plus the per-flow secrets
// minted by AuthorizationURL.
type ExchangeRequest struct {
	Code         string
	CodeVerifier string
	Nonce        string

	// RedirectURI must match the one used in the authorization URL, if any.
	RedirectURI string
}

// ExchangeResult is the provider token set and the verified identity.
type ExchangeResult struct {
	Identity     Identity
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// Exchange redeems the authorization code, verifies the ID token signature
// and nonce, and fetches the userinfo profile.
func (c *Client) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	provider, verifier, conf, err := c.ready()
	if err != nil {
		return ExchangeResult{}, err
	}
	if req.RedirectURI != "" {
		conf.RedirectURL = req.RedirectURI
	}

	ctx = oidc.ClientContext(ctx, c.cfg.HTTPClient)

	token, err := conf.Exchange(ctx, req.Code, oauth2.VerifierOption(req.CodeVerifier))
	if err != nil {
		return ExchangeResult{}, classifyExchangeError(err)
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return ExchangeResult{}, fmt.Errorf("%w: response missing id_token", ErrExchangeFailed)
	}

	idToken, err := verifier.Verify(ctx, rawID)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("%w: id token verification: %v", ErrExchangeFailed, err)
	}
	if idToken.Nonce != req.Nonce {
		return ExchangeResult{}, ErrNonceMismatch
	}

	ident := Identity{Subject: idToken.Subject}

	// Profile claims come from userinfo rather than the ID token so that
	// providers with minimal ID tokens still yield an email.
	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("%w: userinfo: %v", ErrProviderUnavailable, err)
	}

	var profile struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := info.Claims(&profile); err != nil {
		return ExchangeResult{}, fmt.Errorf("%w: userinfo claims: %v", ErrProviderUnavailable, err)
	}

	ident.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	ident.EmailVerified = profile.EmailVerified
	ident.Name = profile.Name
	ident.Picture = profile.Picture

	if info.Subject != "" && info.Subject != ident.Subject {
		return ExchangeResult{}, fmt.Errorf("%w: userinfo subject mismatch", ErrExchangeFailed)
	}

	return ExchangeResult{
		Identity:     ident,
		IDToken:      rawID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// classifyExchangeError separates provider rejections, which the user cannot
// fix by retrying, from transport failures, which they can.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
