package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/crestvale/identity/internal/identity/domain"
	"github.com/crestvale/identity/internal/identity/event"
	"github.com/crestvale/identity/internal/identity/store"
	"github.com/crestvale/identity/internal/identity/wallet"
	"github.com/crestvale/identity/pkg/authkit"
	"github.com/crestvale/identity/pkg/cryptox"
	"github.com/crestvale/identity/pkg/idx"
	"github.com/crestvale/identity/pkg/jwtx"
	"github.com/crestvale/identity/pkg/slogx"
)

var (
	ErrTermsNotAccepted  = errors.New("terms of service not accepted")
	ErrAlreadyRegistered = errors.New("user already registered")
	ErrMissingIdentity   = errors.New("federated identity incomplete")
)

// RegistrationService links a verified federated identity to a new local
// user and best-effort provisions the auxiliary resources around it.
type RegistrationService struct {
	Store   store.Store
	Backing *authkit.Client
	Wallet  *wallet.Client
	Events  *event.Producer

	Signer       jwtx.Signer
	Issuer       string
	TokenTTL     time.Duration
	ServerSecret string
	DefaultRole  string
}

// CompleteRegistrationInput is the verified identity plus the caller's
// registration choices.
type CompleteRegistrationInput struct {
	Identity      domain.FederatedIdentity
	DisplayName   string
	TermsAccepted bool
}

// CompleteRegistration creates the user, derives the deterministic backing
// credential, and runs best-effort provisioning. Provisioning failures
// degrade response fields instead of failing the registration.
func (s *RegistrationService) CompleteRegistration(ctx context.Context, in CompleteRegistrationInput) (domain.RegistrationResult, error) {
	if !in.TermsAccepted {
		return domain.RegistrationResult{}, ErrTermsNotAccepted
	}
	if in.Identity.Subject == "" || in.Identity.Email == "" {
		return domain.RegistrationResult{}, ErrMissingIdentity
	}

	email := strings.ToLower(strings.TrimSpace(in.Identity.Email))

	if _, err := s.Store.Users().GetByEmail(ctx, email); err == nil {
		return domain.RegistrationResult{}, ErrAlreadyRegistered
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.RegistrationResult{}, fmt.Errorf("failed to look up user by email: %w", err)
	}

	displayName := in.DisplayName
	if displayName == "" {
		displayName = in.Identity.Name
	}

	now := time.Now().UTC()
	subject := in.Identity.Subject
	user := domain.User{
		ID:               idx.New().String(),
		Email:            email,
		DisplayName:      displayName,
		Role:             s.role(),
		Active:           true,
		FederatedSubject: &subject,
		TermsAcceptedAt:  &now,
	}

	if err := s.Store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.RegistrationResult{}, ErrAlreadyRegistered
		}
		return domain.RegistrationResult{}, fmt.Errorf("failed to create user: %w", err)
	}

	result := domain.RegistrationResult{User: user}

	// Provisioning runs after the user exists and never rolls it back.
	s.provisionWallet(ctx, &result)
	s.provisionBackingAccount(ctx, &result)

	token, err := s.mintAppToken(result.User, domain.AAL1)
	if err != nil {
		return domain.RegistrationResult{}, fmt.Errorf("failed to mint application token: %w", err)
	}
	result.AppToken = token

	s.Events.PublishUserRegistered(ctx, event.UserRegistered{
		UserID:       result.User.ID,
		Email:        result.User.Email,
		Role:         result.User.Role,
		Degraded:     result.Degraded,
		RegisteredAt: now,
	})

	return result, nil
}

// provisionWallet runs the idempotent wallet get-or-create. Failure leaves
// WalletAddress nil and records the degraded component.
func (s *RegistrationService) provisionWallet(ctx context.Context, result *domain.RegistrationResult) {
	w, err := s.Wallet.GetOrCreate(ctx, result.User.ID)
	if err != nil {
		slogx.FromContext(ctx).Warn("wallet provisioning degraded",
			slog.String("user_id", result.User.ID), slog.Any("error", err))
		result.Degraded = append(result.Degraded, domain.ComponentWallet)
		return
	}

	if err := s.Store.Users().SetWalletAddress(ctx, result.User.ID, w.Address); err != nil {
		slogx.FromContext(ctx).Warn("failed to record wallet address",
			slog.String("user_id", result.User.ID), slog.Any("error", err))
		result.Degraded = append(result.Degraded, domain.ComponentWallet)
		return
	}

	addr := w.Address
	result.WalletAddress = &addr
	result.User.WalletAddress = &addr
}

// provisionBackingAccount creates the backing-service account with the
// deterministic credential and signs in immediately. Failure leaves
// BackingSession nil and records the degraded component.
func (s *RegistrationService) provisionBackingAccount(ctx context.Context, result *domain.RegistrationResult) {
	credential := cryptox.DeriveBackingCredential(s.ServerSecret, *result.User.FederatedSubject)

	_, err := s.Backing.SignUp(ctx, authkit.SignUpRequest{
		Email:    result.User.Email,
		Password: credential,
	})
	if err != nil && !errors.Is(err, authkit.ErrUserExists) {
		slogx.FromContext(ctx).Warn("backing account provisioning degraded",
			slog.String("user_id", result.User.ID), slog.Any("error", err))
		result.Degraded = append(result.Degraded, domain.ComponentBackingAuth)
		return
	}

	tokens, err := s.Backing.PasswordGrant(ctx, result.User.Email, credential)
	if err != nil {
		slogx.FromContext(ctx).Warn("backing sign-in degraded",
			slog.String("user_id", result.User.ID), slog.Any("error", err))
		result.Degraded = append(result.Degraded, domain.ComponentBackingAuth)
		return
	}

	result.BackingSession = &domain.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
		AAL:          domain.AAL1,
	}

	// Record the backing account id when the token carries one.
	if sub, err := s.Backing.NewSession(tokens).Subject(); err == nil {
		if err := s.Store.Users().SetBackingAccountID(ctx, result.User.ID, sub); err != nil {
			slogx.FromContext(ctx).Warn("failed to record backing account id",
				slog.String("user_id", result.User.ID), slog.Any("error", err))
		} else {
			result.User.BackingAccountID = &sub
		}
	}
}

func (s *RegistrationService) mintAppToken(u domain.User, aal string) (string, error) {
	claims := jwtx.NewAccessClaims(u.ID, u.Role, u.Email, aal, s.Issuer, s.ttl(), time.Now())
	return s.Signer.Sign(claims)
}

func (s *RegistrationService) role() string {
	if s.DefaultRole != "" {
		return s.DefaultRole
	}
	return domain.RoleInvestor
}

func (s *RegistrationService) ttl() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return jwtx.DefaultAccessTokenTTL
}
