package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/crestvale/identity/internal/identity/domain"
	"github.com/crestvale/identity/internal/identity/store"
	"github.com/crestvale/identity/pkg/authkit"
	"github.com/crestvale/identity/pkg/httpx"
	"github.com/crestvale/identity/pkg/idx"
)

var (
	ErrMissingTokens   = errors.New("backing session tokens required")
	ErrSessionInvalid  = errors.New("backing session invalid")
	ErrSessionStale    = errors.New("backing session stale, re-authentication required")
	ErrAlreadyEnrolled = errors.New("an active factor is already enrolled")
	ErrNoFactor        = errors.New("no active factor for user")
	ErrUserNotFound    = errors.New("user not found")
)

// assumedTokenValiditySec is used when rebuilding a session from caller
// supplied tokens, whose real expiry is unknown. The access token is tried
// as-is; one the backing service rejects is refreshed and retried by the
// session itself.
const assumedTokenValiditySec = 90

// MFAService manages TOTP factor enrollment against the backing auth
// service, always acting with the caller's own session tokens.
type MFAService struct {
	Store   store.Store
	Backing *authkit.Client
	Issuer  string
}

// Enroll requests a new TOTP factor for the caller and records it locally.
// The provisioning material is returned once and never stored.
func (s *MFAService) Enroll(ctx context.Context, userID string, tokens httpx.SessionTokens, friendlyName string) (domain.EnrollmentMaterial, error) {
	if tokens.Empty() {
		return domain.EnrollmentMaterial{}, ErrMissingTokens
	}

	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.EnrollmentMaterial{}, ErrUserNotFound
		}
		return domain.EnrollmentMaterial{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user.MFAFactorID != nil {
		return domain.EnrollmentMaterial{}, ErrAlreadyEnrolled
	}

	sess := s.Backing.NewSessionFromTokens(tokens.AccessToken, tokens.RefreshToken, assumedTokenValiditySec)
	enrolled, err := sess.EnrollFactor(ctx, authkit.EnrollFactorRequest{
		Type:         domain.FactorTypeTOTP,
		FriendlyName: friendlyName,
		Issuer:       s.Issuer,
	})
	if err != nil {
		return domain.EnrollmentMaterial{}, mapBackingSessionErr(err)
	}

	factor := domain.MFAFactor{
		ID:           idx.New().String(),
		UserID:       user.ID,
		BackingID:    enrolled.ID,
		Type:         domain.FactorTypeTOTP,
		FriendlyName: friendlyName,
		Active:       true,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAFactors().Upsert(ctx, factor); err != nil {
			return err
		}
		return tx.Users().SetMFAFactorID(ctx, user.ID, &factor.ID)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.EnrollmentMaterial{}, ErrAlreadyEnrolled
		}
		return domain.EnrollmentMaterial{}, fmt.Errorf("failed to record factor: %w", err)
	}

	return domain.EnrollmentMaterial{
		FactorID: factor.ID,
		Secret:   enrolled.TOTP.Secret,
		URI:      enrolled.TOTP.URI,
		QRCode:   enrolled.TOTP.QRCode,
	}, nil
}

// Unenroll removes a factor at the backing service and locally. When no
// factor id is given the caller's single active factor is resolved.
func (s *MFAService) Unenroll(ctx context.Context, userID string, tokens httpx.SessionTokens, factorID string) error {
	if tokens.Empty() {
		return ErrMissingTokens
	}

	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	factor, err := s.resolveFactor(ctx, userID, factorID)
	if err != nil {
		return err
	}

	sess := s.Backing.NewSessionFromTokens(tokens.AccessToken, tokens.RefreshToken, assumedTokenValiditySec)
	if err := sess.DeleteFactor(ctx, factor.BackingID); err != nil {
		// A factor already gone upstream should still be cleaned up locally.
		if !errors.Is(err, authkit.ErrFactorNotFound) {
			return mapBackingSessionErr(err)
		}
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAFactors().Delete(ctx, factor.ID); err != nil {
			return err
		}
		// Only the factor recorded on the user resets the enrollment flag;
		// deleting a stale record must not disable step-up.
		if user.MFAFactorID == nil || *user.MFAFactorID != factor.ID {
			return nil
		}
		return tx.Users().SetMFAFactorID(ctx, userID, nil)
	})
}

// List is a read-only projection of the caller's local factor records.
func (s *MFAService) List(ctx context.Context, userID string, activeOnly bool) ([]domain.MFAFactor, error) {
	return s.Store.MFAFactors().ListByUser(ctx, userID, activeOnly)
}

// Enabled reports whether the user has an active factor and which one.
func (s *MFAService) Enabled(ctx context.Context, userID string) (bool, *string, error) {
	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil, ErrUserNotFound
		}
		return false, nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user.MFAFactorID != nil, user.MFAFactorID, nil
}

// Status returns the user's step-up posture with factor projections.
func (s *MFAService) Status(ctx context.Context, userID string) (domain.MFAStatus, []domain.MFAFactor, error) {
	enabled, _, err := s.Enabled(ctx, userID)
	if err != nil {
		return domain.MFAStatus{}, nil, err
	}

	factors, err := s.Store.MFAFactors().ListByUser(ctx, userID, false)
	if err != nil {
		return domain.MFAStatus{}, nil, fmt.Errorf("failed to list factors: %w", err)
	}

	status := domain.MFAStatus{Enrolled: enabled}
	for i := range factors {
		if factors[i].Active {
			status.Factor = &factors[i]
			break
		}
	}
	return status, factors, nil
}

// resolveFactor loads a factor by id, or the user's single active factor
// when no id is supplied.
func (s *MFAService) resolveFactor(ctx context.Context, userID, factorID string) (domain.MFAFactor, error) {
	if factorID == "" {
		factor, err := s.Store.MFAFactors().FindActiveByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.MFAFactor{}, ErrNoFactor
			}
			return domain.MFAFactor{}, fmt.Errorf("failed to resolve active factor: %w", err)
		}
		return factor, nil
	}

	factor, err := s.Store.MFAFactors().GetByID(ctx, factorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MFAFactor{}, ErrNoFactor
		}
		return domain.MFAFactor{}, fmt.Errorf("failed to load factor: %w", err)
	}
	if factor.UserID != userID {
		return domain.MFAFactor{}, ErrNoFactor
	}
	return factor, nil
}

// mapBackingSessionErr translates backing-service session failures into
// this package's taxonomy.
func mapBackingSessionErr(err error) error {
	switch {
	case errors.Is(err, authkit.ErrSessionExpired):
		return fmt.Errorf("%w: %w", ErrSessionStale, err)
	case errors.Is(err, authkit.ErrInvalidCredentials):
		return fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	default:
		return err
	}
}
