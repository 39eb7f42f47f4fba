package oidcx

import (
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/crestvale/identity/pkg/cryptox"
)

// AuthorizationRequest controls optional parameters of the authorization URL.
type AuthorizationRequest struct {
	// RedirectURI, when set, is included as the redirect_uri parameter.
	// When empty the parameter is omitted and the provider falls back to
	// its registered default.
	RedirectURI string
}

// AuthorizationURL is the provider URL to send the browser to, plus the
// per-flow secrets the caller must hold on to until the callback.
type AuthorizationURL struct {
	URL          string
	State        string
	Nonce        string
	CodeVerifier string
}

// AuthorizationURL builds a fresh authorization-code+PKCE URL. Each call
// mints new state, nonce and code-verifier values.
func (c *Client) AuthorizationURL(req AuthorizationRequest) (AuthorizationURL, error) {
	_, _, conf, err := c.ready()
	if err != nil {
		return AuthorizationURL{}, err
	}

	flow, err := cryptox.NewPKCE()
	if err != nil {
		return AuthorizationURL{}, err
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(flow.Verifier),
		oidc.Nonce(flow.Nonce),
	}
	if req.RedirectURI != "" {
		conf.RedirectURL = req.RedirectURI
	}

	return AuthorizationURL{
		URL:          conf.AuthCodeURL(flow.State, opts...),
		State:        flow.State,
		Nonce:        flow.Nonce,
		CodeVerifier: flow.Verifier,
	}, nil
}
