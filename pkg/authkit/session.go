package authkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshBuffer is subtracted from the token lifetime so a session refreshes
// slightly before the service would reject the token.
const refreshBuffer = 30 * time.Second

// Session is an authenticated view of one backing-service account. Methods
// refresh the access token automatically when it is near expiry, so a
// Session stays usable for as long as its refresh token is valid.
type Session struct {
	client *Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewSession wraps a token grant response in a Session.
func (c *Client) NewSession(tokenResp *TokenResponse) *Session {
	return &Session{
		client:       c,
		accessToken:  tokenResp.AccessToken,
		refreshToken: tokenResp.RefreshToken,
		expiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - refreshBuffer),
	}
}

// NewSessionFromTokens builds a Session from tokens captured earlier, for
// example forwarded by a client on request headers. The access token is
// treated as already-expired when expiresIn is zero, forcing a refresh on
// first use.
func (c *Client) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    time.Now().Add(time.Duration(expiresIn)*time.Second - refreshBuffer),
	}
}

// AccessToken returns the current access token without refresh.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Subject extracts the account ID from the access token's subject claim.
// The token signature is the backing service's concern; the claim is read
// without verification here. A token with no subject is unusable and
// reported as an expired session.
func (s *Session) Subject() (string, error) {
	s.mu.RLock()
	raw := s.accessToken
	s.mu.RUnlock()

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: access token has no subject claim", ErrSessionExpired)
	}
	return sub, nil
}

// getValidToken returns a usable access token, refreshing it first when the
// expiry buffer has been reached.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", fmt.Errorf("%w: access token expired and no refresh token held", ErrSessionExpired)
	}

	tokenResp, err := s.client.RefreshGrant(ctx, s.refreshToken)
	if err != nil {
		return "", err
	}

	s.accessToken = tokenResp.AccessToken
	s.refreshToken = tokenResp.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - refreshBuffer)
	return s.accessToken, nil
}

// doAuthJSON performs an authenticated JSON request as this session's user.
// The local expiry estimate can run ahead of the real one when the tokens
// were forwarded by a client, so a 401 on a token held as valid triggers a
// single refresh-and-retry before the session is reported expired.
func (s *Session) doAuthJSON(ctx context.Context, method, path string, in, out any, expectedStatus int) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}

	err = s.send(ctx, method, path, token, in, out, expectedStatus)
	if err == nil || !errors.Is(err, ErrSessionExpired) {
		return err
	}

	token, refreshErr := s.refreshNow(ctx, token)
	if refreshErr != nil {
		return err
	}
	return s.send(ctx, method, path, token, in, out, expectedStatus)
}

// refreshNow refreshes regardless of the local expiry estimate. The rejected
// token guards against a double refresh when another goroutine already
// replaced it.
func (s *Session) refreshNow(ctx context.Context, rejected string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != rejected {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token held", ErrSessionExpired)
	}

	tokenResp, err := s.client.RefreshGrant(ctx, s.refreshToken)
	if err != nil {
		return "", err
	}

	s.accessToken = tokenResp.AccessToken
	s.refreshToken = tokenResp.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - refreshBuffer)
	return s.accessToken, nil
}

func (s *Session) send(ctx context.Context, method, path, token string, in, out any, expectedStatus int) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeJSON(resp, out, expectedStatus)
}
