package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crestvale/identity/internal/identity/domain"
	"github.com/crestvale/identity/pkg/oidcx"
)

var (
	ErrFederationNotReady = errors.New("federation client not ready")
	ErrExchangeRejected   = errors.New("authorization code rejected")
	ErrReplayOrTamper     = errors.New("nonce mismatch, possible replay")
	ErrProviderDown       = errors.New("identity provider unavailable")
	ErrRedirectNotAllowed = errors.New("redirect URI outside the frontend origin")
)

// FederationService drives the OIDC relying-party flows against the
// external identity provider.
type FederationService struct {
	Provider *oidcx.Client

	// RedirectBase, when set, restricts explicit redirect URIs to the
	// frontend origin.
	RedirectBase string
}

// AuthorizeURL builds a fresh authorization request. The returned verifier
// and nonce are caller-held; the server keeps no per-flow state.
func (s *FederationService) AuthorizeURL(redirectURI string) (domain.AuthorizationTicket, error) {
	if err := s.checkRedirect(redirectURI); err != nil {
		return domain.AuthorizationTicket{}, err
	}

	u, err := s.Provider.AuthorizationURL(oidcx.AuthorizationRequest{RedirectURI: redirectURI})
	if err != nil {
		return domain.AuthorizationTicket{}, mapFederationErr(err)
	}

	return domain.AuthorizationTicket{
		URL:          u.URL,
		State:        u.State,
		Nonce:        u.Nonce,
		CodeVerifier: u.CodeVerifier,
	}, nil
}

// Callback redeems the authorization code and returns the provider token
// set plus the verified federated identity.
func (s *FederationService) Callback(ctx context.Context, code, codeVerifier, nonce, redirectURI string) (domain.CallbackResult, error) {
	if err := s.checkRedirect(redirectURI); err != nil {
		return domain.CallbackResult{}, err
	}

	res, err := s.Provider.Exchange(ctx, oidcx.ExchangeRequest{
		Code:         code,
		CodeVerifier: codeVerifier,
		Nonce:        nonce,
		RedirectURI:  redirectURI,
	})
	if err != nil {
		return domain.CallbackResult{}, mapFederationErr(err)
	}

	return domain.CallbackResult{
		Tokens: domain.TokenPair{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			AAL:          domain.AAL1,
		},
		IDToken: res.IDToken,
		Identity: domain.FederatedIdentity{
			Subject:       res.Identity.Subject,
			Email:         res.Identity.Email,
			EmailVerified: res.Identity.EmailVerified,
			Name:          res.Identity.Name,
			Picture:       res.Identity.Picture,
		},
	}, nil
}

// Ready reports whether issuer discovery has completed.
func (s *FederationService) Ready() bool {
	return s.Provider.Status() == oidcx.StatusReady
}

func (s *FederationService) checkRedirect(redirectURI string) error {
	if redirectURI == "" || s.RedirectBase == "" {
		return nil
	}
	if !strings.HasPrefix(redirectURI, s.RedirectBase) {
		return fmt.Errorf("%w: %s", ErrRedirectNotAllowed, redirectURI)
	}
	return nil
}

func mapFederationErr(err error) error {
	switch {
	case errors.Is(err, oidcx.ErrNotReady):
		return fmt.Errorf("%w: %w", ErrFederationNotReady, err)
	case errors.Is(err, oidcx.ErrNonceMismatch):
		return fmt.Errorf("%w: %w", ErrReplayOrTamper, err)
	case errors.Is(err, oidcx.ErrExchangeFailed):
		return fmt.Errorf("%w: %w", ErrExchangeRejected, err)
	case errors.Is(err, oidcx.ErrProviderUnavailable):
		return fmt.Errorf("%w: %w", ErrProviderDown, err)
	default:
		return err
	}
}
