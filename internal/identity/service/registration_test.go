package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crestvale/identity/internal/identity/domain"
	"github.com/crestvale/identity/internal/identity/store/drivers/sqlite"
	"github.com/crestvale/identity/internal/identity/wallet"
	"github.com/crestvale/identity/pkg/authkit"
	"github.com/crestvale/identity/pkg/jwtx"
)

const testServerSecret = "unit-test-derivation-secret"

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestSigner(t *testing.T) *jwtx.KeyPair {
	t.Helper()

	kp, err := jwtx.NewKeyPair("test-key")
	require.NoError(t, err)
	return kp
}

// newFakeWallet serves the wallet get-or-create contract in memory.
func newFakeWallet(t *testing.T) *httptest.Server {
	t.Helper()

	wallets := make(map[string]string)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/wallets/owner/{ref}", func(w http.ResponseWriter, r *http.Request) {
		ref := r.PathValue("ref")
		addr, ok := wallets[ref]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(wallet.Wallet{Address: addr, OwnerRef: ref})
	})
	mux.HandleFunc("POST /v1/wallets", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		ref := req["owner_ref"]
		if _, ok := wallets[ref]; ok {
			w.WriteHeader(http.StatusConflict)
			return
		}
		wallets[ref] = "0xwallet-" + ref
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(wallet.Wallet{Address: wallets[ref], OwnerRef: ref})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newRegistrationService(t *testing.T, s *sqlite.Store, backingURL, walletURL string) (*RegistrationService, *jwtx.KeyPair) {
	t.Helper()

	signer := newTestSigner(t)
	return &RegistrationService{
		Store:        s,
		Backing:      authkit.NewClient(backingURL),
		Wallet:       wallet.NewClient(walletURL),
		Signer:       signer,
		Issuer:       "identity-test",
		ServerSecret: testServerSecret,
	}, signer
}

func testIdentity(subject, email string) domain.FederatedIdentity {
	return domain.FederatedIdentity{
		Subject:       subject,
		Email:         email,
		EmailVerified: true,
		Name:          "Casey Example",
	}
}

func TestCompleteRegistration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	backing := newFakeBacking(t)
	walletSrv := newFakeWallet(t)
	svc, signer := newRegistrationService(t, s, backing.URL(), walletSrv.URL)

	res, err := svc.CompleteRegistration(ctx, CompleteRegistrationInput{
		Identity:      testIdentity("idp-sub-1", "Casey@Example.com"),
		TermsAccepted: true,
	})
	require.NoError(t, err)

	require.Equal(t, "casey@example.com", res.User.Email)
	require.Equal(t, domain.RoleInvestor, res.User.Role)
	require.True(t, res.User.Active)
	require.NotNil(t, res.User.TermsAcceptedAt)
	require.Empty(t, res.Degraded)

	require.NotNil(t, res.WalletAddress)
	require.Equal(t, "0xwallet-"+res.User.ID, *res.WalletAddress)

	require.NotNil(t, res.BackingSession)
	require.NotEmpty(t, res.BackingSession.AccessToken)
	require.Equal(t, domain.AAL1, res.BackingSession.AAL)

	claims, err := signer.Verify(res.AppToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, claims.Subject)
	require.Equal(t, domain.RoleInvestor, claims.Role)
	require.Equal(t, domain.AAL1, claims.AAL)

	stored, err := s.Users().GetByEmail(ctx, "casey@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.WalletAddress)
	require.NotNil(t, stored.BackingAccountID)
}

func TestCompleteRegistrationDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	backing := newFakeBacking(t)
	walletSrv := newFakeWallet(t)
	svc, _ := newRegistrationService(t, s, backing.URL(), walletSrv.URL)

	_, err := svc.CompleteRegistration(ctx, CompleteRegistrationInput{
		Identity:      testIdentity("idp-sub-1", "casey@example.com"),
		TermsAccepted: true,
	})
	require.NoError(t, err)

	// Same identity again, with different email casing.
	_, err = svc.CompleteRegistration(ctx, CompleteRegistrationInput{
		Identity:      testIdentity("idp-sub-1", "CASEY@example.com"),
		TermsAccepted: true,
	})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestCompleteRegistrationRequiresTerms(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	backing := newFakeBacking(t)
	walletSrv := newFakeWallet(t)
	svc, _ := newRegistrationService(t, s, backing.URL(), walletSrv.URL)

	_, err := svc.CompleteRegistration(context.Background(), CompleteRegistrationInput{
		Identity:      testIdentity("idp-sub-1", "casey@example.com"),
		TermsAccepted: false,
	})
	require.ErrorIs(t, err, ErrTermsNotAccepted)
}

func TestCompleteRegistrationWalletOutageDegrades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	backing := newFakeBacking(t)
	svc, _ := newRegistrationService(t, s, backing.URL(), "http://127.0.0.1:1")

	res, err := svc.CompleteRegistration(ctx, CompleteRegistrationInput{
		Identity:      testIdentity("idp-sub-1", "casey@example.com"),
		TermsAccepted: true,
	})
	require.NoError(t, err)
	require.Nil(t, res.WalletAddress)
	require.Contains(t, res.Degraded, domain.ComponentWallet)

	// Backing provisioning was unaffected.
	require.NotNil(t, res.BackingSession)
	require.NotEmpty(t, res.AppToken)
}

func TestCompleteRegistrationBackingOutageDegrades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	walletSrv := newFakeWallet(t)
	svc, _ := newRegistrationService(t, s, "http://127.0.0.1:1", walletSrv.URL)

	res, err := svc.CompleteRegistration(ctx, CompleteRegistrationInput{
		Identity:      testIdentity("idp-sub-1", "casey@example.com"),
		TermsAccepted: true,
	})
	require.NoError(t, err)
	require.Nil(t, res.BackingSession)
	require.Contains(t, res.Degraded, domain.ComponentBackingAuth)
	require.NotNil(t, res.WalletAddress)
	require.NotEmpty(t, res.AppToken)
}
