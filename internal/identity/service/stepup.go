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
	"github.com/crestvale/identity/pkg/cryptox"
	"github.com/crestvale/identity/pkg/jwtx"
	"github.com/crestvale/identity/pkg/slogx"
)

var (
	ErrAccountDisabled  = errors.New("account is deactivated")
	ErrChallengeFailure = errors.New("could not open step-up challenge")
)

// StepUpService finishes a login that was deferred because the account
// requires MFA. It authenticates against the backing service as the user,
// using the deterministically derived credential, so the caller never holds
// backing tokens at this point.
type StepUpService struct {
	Store   store.Store
	Backing *authkit.Client

	Signer       jwtx.Signer
	Issuer       string
	TokenTTL     time.Duration
	ServerSecret string
}

// LoginVerify validates the submitted code for the identified user and, on
// success, mints the application token with an aal2 claim.
func (s *StepUpService) LoginVerify(ctx context.Context, userID, code string) (domain.TokenPair, error) {
	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrUserNotFound
		}
		return domain.TokenPair{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.Active {
		return domain.TokenPair{}, ErrAccountDisabled
	}

	factor, err := s.Store.MFAFactors().FindActiveByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrNoFactor
		}
		return domain.TokenPair{}, fmt.Errorf("failed to resolve factor: %w", err)
	}
	if user.FederatedSubject == nil {
		return domain.TokenPair{}, ErrNoFactor
	}

	// Server-side backing session as the user, via the derived credential.
	credential := cryptox.DeriveBackingCredential(s.ServerSecret, *user.FederatedSubject)
	grant, err := s.Backing.PasswordGrant(ctx, user.Email, credential)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrChallengeFailure, err)
	}
	sess := s.Backing.NewSession(grant)

	chal, err := sess.CreateChallenge(ctx, factor.BackingID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrChallengeFailure, err)
	}

	_, err = sess.VerifyChallenge(ctx, factor.BackingID, authkit.VerifyRequest{
		ChallengeID: chal.ID,
		Code:        code,
	})
	if err != nil {
		if errors.Is(err, authkit.ErrInvalidCode) || errors.Is(err, authkit.ErrChallengeExpired) {
			return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidCode, err)
		}
		return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrChallengeFailure, err)
	}

	claims := jwtx.NewAccessClaims(user.ID, user.Role, user.Email, domain.AAL2, s.Issuer, s.ttl(), time.Now())
	appToken, err := s.Signer.Sign(claims)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to mint application token: %w", err)
	}

	if err := s.Store.Users().TouchLastLogin(ctx, user.ID); err != nil {
		slogx.FromContext(ctx).Warn("failed to bump last_login_at",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}
	if err := s.Store.MFAFactors().TouchLastUsed(ctx, factor.ID); err != nil {
		slogx.FromContext(ctx).Warn("failed to bump factor last_used_at",
			slog.String("factor_id", factor.ID), slog.Any("error", err))
	}

	return domain.TokenPair{
		AccessToken: appToken,
		ExpiresAt:   time.Now().Add(s.ttl()),
		AAL:         domain.AAL2,
	}, nil
}

func (s *StepUpService) ttl() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return jwtx.DefaultAccessTokenTTL
}
