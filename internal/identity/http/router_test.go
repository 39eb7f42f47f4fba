package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crestvale/identity/internal/identity/service"
	"github.com/crestvale/identity/internal/identity/store/drivers/sqlite"
	"github.com/crestvale/identity/internal/identity/wallet"
	"github.com/crestvale/identity/pkg/authkit"
	"github.com/crestvale/identity/pkg/httpx"
	"github.com/crestvale/identity/pkg/jwtx"
	"github.com/crestvale/identity/pkg/oidcx"
)

const (
	testIssuer = "identity-test"
	testSecret = "handler-test-derivation-secret"
)

type testEnv struct {
	router  *Router
	store   *sqlite.Store
	backing *stubBacking
	signer  *jwtx.KeyPair
}

// newTestEnv wires the full router against an in-memory store, a stub
// backing service and a stub wallet service. The federation client is left
// undiscovered so not-ready behaviour is observable.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	backing := newStubBacking(t)
	backingClient := authkit.NewClient(backing.URL())
	walletSrv := newStubWallet(t)

	signer, err := jwtx.NewKeyPair("handler-test-key")
	require.NoError(t, err)

	provider := oidcx.New(oidcx.Config{
		IssuerURL: "https://idp.invalid",
		ClientID:  "test-client",
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(signer, testIssuer, "test", st, logger)

	mfa := &service.MFAService{Store: st, Backing: backingClient, Issuer: testIssuer}
	r.FederationService = &service.FederationService{Provider: provider}
	r.RegistrationService = &service.RegistrationService{
		Store:        st,
		Backing:      backingClient,
		Wallet:       wallet.NewClient(walletSrv.URL),
		Signer:       signer,
		Issuer:       testIssuer,
		ServerSecret: testSecret,
	}
	r.MFAService = mfa
	r.ChallengeService = &service.ChallengeService{Store: st, Backing: backingClient, Factors: mfa}
	r.StepUpService = &service.StepUpService{
		Store:        st,
		Backing:      backingClient,
		Signer:       signer,
		Issuer:       testIssuer,
		ServerSecret: testSecret,
	}
	r.ApplyRoutes()

	return &testEnv{router: r, store: st, backing: backing, signer: signer}
}

// newStubWallet serves the wallet get-or-create contract in memory.
func newStubWallet(t *testing.T) *httptest.Server {
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
		wallets[ref] = "0xwallet-" + ref
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(wallet.Wallet{Address: wallets[ref], OwnerRef: ref})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// register drives the public registration endpoint and returns the created
// user plus a bearer token for the authenticated routes.
func (e *testEnv) register(t *testing.T, email string) (RegistrationResponse, string) {
	t.Helper()

	var req CompleteRegistrationRequest
	req.Identity.Subject = "idp-subject-" + email
	req.Identity.Email = email
	req.Identity.EmailVerified = true
	req.TermsAccepted = true

	rec := e.do(t, http.MethodPost, "/v1/auth/federated/complete-registration", "", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	reg := decodeBody[RegistrationResponse](t, rec)
	require.Empty(t, reg.Degraded)

	claims := jwtx.NewAccessClaims(reg.User.ID, reg.User.Role, reg.User.Email, "aal1", testIssuer, time.Minute, time.Now())
	token, err := e.signer.Sign(claims)
	require.NoError(t, err)
	return reg, token
}

func TestAuthorizeURLNotReady(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/federated/authorize-url", "", AuthorizeURLRequest{})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody[map[string]string](t, rec)
	require.Equal(t, "not_ready", body["error"])
}

func TestCallbackValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/federated/callback", "", CallbackRequest{Code: "abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteRegistration(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	reg, _ := env.register(t, "casey@example.com")
	require.Equal(t, "casey@example.com", reg.User.Email)
	require.NotEmpty(t, reg.AppToken)
	require.NotNil(t, reg.WalletAddress)
	require.NotNil(t, reg.BackingSession)
	require.Equal(t, "aal1", reg.BackingSession.AAL)

	t.Run("duplicate email conflicts", func(t *testing.T) {
		var req CompleteRegistrationRequest
		req.Identity.Subject = "idp-subject-other"
		req.Identity.Email = "Casey@Example.com"
		req.TermsAccepted = true

		rec := env.do(t, http.MethodPost, "/v1/auth/federated/complete-registration", "", req)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("terms must be accepted", func(t *testing.T) {
		var req CompleteRegistrationRequest
		req.Identity.Subject = "idp-subject-terms"
		req.Identity.Email = "terms@example.com"

		rec := env.do(t, http.MethodPost, "/v1/auth/federated/complete-registration", "", req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMFARoutesRequireBearer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/auth/mfa/enabled", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	t.Run("foreign issuer rejected", func(t *testing.T) {
		reg, _ := env.register(t, "issuer@example.com")

		claims := jwtx.NewAccessClaims(reg.User.ID, reg.User.Role, reg.User.Email, "aal1", "other-service", time.Minute, time.Now())
		token, err := env.signer.Sign(claims)
		require.NoError(t, err)

		rec := env.do(t, http.MethodGet, "/v1/auth/mfa/enabled", token, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestEnrollmentLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	reg, token := env.register(t, "enroll@example.com")
	session := *reg.BackingSession

	rec := env.do(t, http.MethodGet, "/v1/auth/mfa/enabled", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	enabled := decodeBody[EnabledResponse](t, rec)
	require.False(t, enabled.Enabled)
	require.Nil(t, enabled.MFAFactorID)

	rec = env.do(t, http.MethodPost, "/v1/auth/mfa/enroll", token, EnrollRequest{
		SessionTokens: sessionTokens(session),
		FriendlyName:  "authenticator",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	enrolled := decodeBody[EnrollResponse](t, rec)
	require.NotEmpty(t, enrolled.FactorID)
	require.NotEmpty(t, enrolled.Secret)

	rec = env.do(t, http.MethodGet, "/v1/auth/mfa/enabled", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	enabled = decodeBody[EnabledResponse](t, rec)
	require.True(t, enabled.Enabled)
	require.NotNil(t, enabled.MFAFactorID)

	rec = env.do(t, http.MethodGet, "/v1/auth/mfa/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[StatusResponse](t, rec)
	require.True(t, status.MFAEnabled)
	require.Equal(t, 1, status.FactorCount)
	require.Len(t, status.Factors, 1)
	require.Equal(t, "authenticator", status.Factors[0].FriendlyName)

	rec = env.do(t, http.MethodGet, "/v1/auth/mfa/factors", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	factors := decodeBody[[]FactorResponse](t, rec)
	require.Len(t, factors, 1)

	rec = env.do(t, http.MethodPost, "/v1/auth/mfa/unenroll", token, UnenrollRequest{
		SessionTokens: sessionTokens(session),
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/auth/mfa/enabled", token, nil)
	enabled = decodeBody[EnabledResponse](t, rec)
	require.False(t, enabled.Enabled)
}

func TestEnrollMissingTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, token := env.register(t, "notokens@example.com")

	rec := env.do(t, http.MethodPost, "/v1/auth/mfa/enroll", token, EnrollRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChallengeVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	reg, token := env.register(t, "verify@example.com")
	session := *reg.BackingSession

	rec := env.do(t, http.MethodPost, "/v1/auth/mfa/enroll", token, EnrollRequest{
		SessionTokens: sessionTokens(session),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	enrolled := decodeBody[EnrollResponse](t, rec)

	// Session tokens also travel via the dedicated headers.
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(ChallengeRequest{}))
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/mfa/challenge", &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Session-Access-Token", session.AccessToken)
	req.Header.Set("X-Session-Refresh-Token", session.RefreshToken)
	hdrRec := httptest.NewRecorder()
	env.router.ServeHTTP(hdrRec, req)
	require.Equal(t, http.StatusOK, hdrRec.Code, hdrRec.Body.String())
	chal := decodeBody[ChallengeResponse](t, hdrRec)
	require.NotEmpty(t, chal.ChallengeID)
	require.True(t, chal.ExpiresAt.After(time.Now()))

	t.Run("wrong code rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/mfa/verify", token, VerifyRequest{
			SessionTokens: sessionTokens(session),
			FactorID:      chal.FactorID,
			ChallengeID:   chal.ChallengeID,
			Code:          "000000",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	rec = env.do(t, http.MethodPost, "/v1/auth/mfa/verify", token, VerifyRequest{
		SessionTokens: sessionTokens(session),
		FactorID:      chal.FactorID,
		ChallengeID:   chal.ChallengeID,
		Code:          env.backing.code(t, enrolled.FactorID),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decodeBody[TokenPairResponse](t, rec)
	require.Equal(t, "aal2", pair.AAL)
	require.NotEmpty(t, pair.AccessToken)
}

func TestLoginVerify(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	reg, token := env.register(t, "stepup@example.com")
	session := *reg.BackingSession

	rec := env.do(t, http.MethodPost, "/v1/auth/mfa/enroll", token, EnrollRequest{
		SessionTokens: sessionTokens(session),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	enrolled := decodeBody[EnrollResponse](t, rec)

	t.Run("wrong code is unauthorized", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/mfa/login-verify", "", LoginVerifyRequest{
			UserID: reg.User.ID,
			Code:   "000000",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/mfa/login-verify", "", LoginVerifyRequest{
			UserID: "nope",
			Code:   "123456",
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	rec = env.do(t, http.MethodPost, "/v1/auth/mfa/login-verify", "", LoginVerifyRequest{
		UserID: reg.User.ID,
		Code:   env.backing.code(t, enrolled.FactorID),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[LoginVerifyResponse](t, rec)
	require.Equal(t, "aal2", out.AAL)

	claims, err := env.signer.Verify(out.AppToken)
	require.NoError(t, err)
	require.Equal(t, reg.User.ID, claims.Subject)
	require.Equal(t, "aal2", claims.AAL)
}

func TestHealthProbes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	live := decodeBody[HealthResponse](t, rec)
	require.Equal(t, "ok", live.Status)

	// Readiness degrades while issuer discovery has not run.
	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	ready := decodeBody[HealthResponse](t, rec)
	require.Equal(t, "degraded", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
}

func sessionTokens(pair TokenPairResponse) httpx.SessionTokens {
	return httpx.SessionTokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
}
