package authkit

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// EnrollFactor starts TOTP enrollment on the backing account. The returned
// secret and otpauth URI must be relayed to the user immediately; the
// backing service will not return them again.
func (s *Session) EnrollFactor(ctx context.Context, req EnrollFactorRequest) (*EnrollFactorResponse, error) {
	var out EnrollFactorResponse
	if err := s.doAuthJSON(ctx, http.MethodPost, "/v1/factors", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFactors returns the factors on the backing account.
func (s *Session) ListFactors(ctx context.Context) ([]Factor, error) {
	var out struct {
		Factors []Factor `json:"factors"`
	}
	if err := s.doAuthJSON(ctx, http.MethodGet, "/v1/factors", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Factors, nil
}

// DeleteFactor removes a factor from the backing account.
func (s *Session) DeleteFactor(ctx context.Context, factorID string) error {
	path := fmt.Sprintf("/v1/factors/%s", factorID)
	return s.doAuthJSON(ctx, http.MethodDelete, path, nil, nil, http.StatusNoContent)
}

// CreateChallenge opens a short verification window against a factor.
func (s *Session) CreateChallenge(ctx context.Context, factorID string) (*Challenge, error) {
	path := fmt.Sprintf("/v1/factors/%s/challenge", factorID)

	var out Challenge
	if err := s.doAuthJSON(ctx, http.MethodPost, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyChallenge submits a one-time code against an open challenge. On
// success the backing service issues an aal2 token pair, which also becomes
// this session's active token set.
func (s *Session) VerifyChallenge(ctx context.Context, factorID string, req VerifyRequest) (*TokenResponse, error) {
	path := fmt.Sprintf("/v1/factors/%s/verify", factorID)

	var out TokenResponse
	if err := s.doAuthJSON(ctx, http.MethodPost, path, req, &out, http.StatusOK); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.accessToken = out.AccessToken
	if out.RefreshToken != "" {
		s.refreshToken = out.RefreshToken
	}
	s.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - refreshBuffer)
	s.mu.Unlock()

	return &out, nil
}
