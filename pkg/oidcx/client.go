// Package oidcx is the relying-party client for the external identity
// provider: issuer discovery, authorization-URL construction with PKCE, and
// the code-for-tokens exchange with nonce validation.
package oidcx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Status of the one-time issuer discovery.
type Status int

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

var (
	// ErrNotReady means discovery has not completed yet. Retry after a
	// backoff; this is not a terminal error.
	ErrNotReady = errors.New("oidcx: identity provider not discovered yet")

	// ErrExchangeFailed means the provider rejected the code exchange
	// (invalid, expired, or already-consumed code). Not retryable.
	ErrExchangeFailed = errors.New("oidcx: authorization code exchange rejected")

	// ErrProviderUnavailable means the issuer could not be reached.
	// Retryable.
	ErrProviderUnavailable = errors.New("oidcx: identity provider unavailable")

	// ErrNonceMismatch means the ID token's nonce does not match the one
	// issued for this flow. Treat as replay or tampering and abort.
	ErrNonceMismatch = errors.New("oidcx: id token nonce mismatch")
)

// Config for the relying-party client.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string

	// Scopes beyond the always-requested "openid email profile".
	ExtraScopes []string

	// HTTPClient used for discovery, exchange and userinfo. Defaults to a
	// 10s-timeout client.
	HTTPClient *http.Client
}

// Client performs the OIDC relying-party flows. Discovery runs exactly once
// per process; concurrent callers share the in-flight attempt.
type Client struct {
	cfg   Config
	group singleflight.Group

	mu       sync.RWMutex
	status   Status
	initErr  error
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth    oauth2.Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg}
}

// Init discovers the issuer configuration. Safe to call from multiple
// goroutines: concurrent calls await the same attempt, and a failed attempt
// may be retried by calling Init again.
func (c *Client) Init(ctx context.Context) error {
	c.mu.RLock()
	if c.status == StatusReady {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	_, err, _ := c.group.Do("init", func() (any, error) {
		c.setStatus(StatusInitializing, nil)

		discoverCtx := oidc.ClientContext(ctx, c.cfg.HTTPClient)
		provider, err := oidc.NewProvider(discoverCtx, c.cfg.IssuerURL)
		if err != nil {
			err = fmt.Errorf("%w: discovery: %v", ErrProviderUnavailable, err)
			c.setStatus(StatusFailed, err)
			return nil, err
		}

		scopes := append([]string{oidc.ScopeOpenID, "email", "profile"}, c.cfg.ExtraScopes...)

		c.mu.Lock()
		c.provider = provider
		c.verifier = provider.Verifier(&oidc.Config{ClientID: c.cfg.ClientID})
		c.oauth = oauth2.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		}
		c.status = StatusReady
		c.initErr = nil
		c.mu.Unlock()

		return nil, nil
	})
	return err
}

// Status returns the current discovery status.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Client) setStatus(s Status, err error) {
	c.mu.Lock()
	c.status = s
	c.initErr = err
	c.mu.Unlock()
}

// ready returns the discovered handles or ErrNotReady.
func (c *Client) ready() (*oidc.Provider, *oidc.IDTokenVerifier, oauth2.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.status != StatusReady {
		return nil, nil, oauth2.Config{}, ErrNotReady
	}
	return c.provider, c.verifier, c.oauth, nil
}
