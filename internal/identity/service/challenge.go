package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crestvale/identity/internal/identity/domain"
	"github.com/crestvale/identity/internal/identity/store"
	"github.com/crestvale/identity/pkg/authkit"
	"github.com/crestvale/identity/pkg/httpx"
	"github.com/crestvale/identity/pkg/slogx"
)

var ErrInvalidCode = errors.New("code verification failed")

// ChallengeService runs the challenge/verify half of the step-up state
// machine. Challenges are owned and timed by the backing service; this
// service only carries them between the two calls.
type ChallengeService struct {
	Store   store.Store
	Backing *authkit.Client

	// Factors resolves factor lookups; shared with MFAService.
	Factors *MFAService
}

// Challenge opens a verification window against the caller's factor,
// auto-resolving the single active factor when no id is given.
func (s *ChallengeService) Challenge(ctx context.Context, userID string, tokens httpx.SessionTokens, factorID string) (domain.ChallengeTicket, error) {
	if tokens.Empty() {
		return domain.ChallengeTicket{}, ErrMissingTokens
	}

	factor, err := s.Factors.resolveFactor(ctx, userID, factorID)
	if err != nil {
		return domain.ChallengeTicket{}, err
	}

	sess := s.Backing.NewSessionFromTokens(tokens.AccessToken, tokens.RefreshToken, assumedTokenValiditySec)
	chal, err := sess.CreateChallenge(ctx, factor.BackingID)
	if err != nil {
		return domain.ChallengeTicket{}, mapBackingSessionErr(err)
	}

	return domain.ChallengeTicket{
		ChallengeID: chal.ID,
		FactorID:    factor.ID,
		ExpiresAt:   chal.ExpiresAt,
	}, nil
}

// Verify submits a code against an open challenge. On success the backing
// service returns an aal2 token pair; LastUsedAt is bumped best-effort and
// never fails the verify.
func (s *ChallengeService) Verify(ctx context.Context, userID string, tokens httpx.SessionTokens, factorID, challengeID, code string) (domain.TokenPair, error) {
	if tokens.Empty() {
		return domain.TokenPair{}, ErrMissingTokens
	}

	factor, err := s.Factors.resolveFactor(ctx, userID, factorID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	sess := s.Backing.NewSessionFromTokens(tokens.AccessToken, tokens.RefreshToken, assumedTokenValiditySec)
	upgraded, err := sess.VerifyChallenge(ctx, factor.BackingID, authkit.VerifyRequest{
		ChallengeID: challengeID,
		Code:        code,
	})
	if err != nil {
		if errors.Is(err, authkit.ErrInvalidCode) || errors.Is(err, authkit.ErrChallengeExpired) {
			return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidCode, err)
		}
		return domain.TokenPair{}, mapBackingSessionErr(err)
	}

	if err := s.Store.MFAFactors().TouchLastUsed(ctx, factor.ID); err != nil {
		slogx.FromContext(ctx).Warn("failed to bump factor last_used_at",
			slog.String("factor_id", factor.ID), slog.Any("error", err))
	}

	return domain.TokenPair{
		AccessToken:  upgraded.AccessToken,
		RefreshToken: upgraded.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(upgraded.ExpiresIn) * time.Second),
		AAL:          domain.AAL2,
	}, nil
}
