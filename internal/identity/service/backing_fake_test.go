package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/crestvale/identity/pkg/authkit"
)

// fakeBacking is an in-process stand-in for the backing auth service:
// accounts, password/refresh grants, TOTP factors and challenges. Factor
// secrets are real TOTP secrets so tests can compute valid codes.
type fakeBacking struct {
	srv *httptest.Server
	t   *testing.T

	mu             sync.Mutex
	accounts       map[string]*fakeAccount // keyed by email
	factors        map[string]*fakeFactor  // keyed by factor id
	challenges     map[string]string       // challenge id -> factor id
	refreshTokens  map[string]string       // refresh token -> account id
	seq            int
	challengeCalls int
}

type fakeAccount struct {
	id       string
	email    string
	password string
}

type fakeFactor struct {
	id      string
	ownerID string
	secret  string
}

var fakeSigningKey = []byte("fake-backing-hmac-key")

func newFakeBacking(t *testing.T) *fakeBacking {
	t.Helper()

	f := &fakeBacking{
		t:             t,
		accounts:      make(map[string]*fakeAccount),
		factors:       make(map[string]*fakeFactor),
		challenges:    make(map[string]string),
		refreshTokens: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/signup", f.handleSignUp)
	mux.HandleFunc("POST /v1/token", f.handleToken)
	mux.HandleFunc("POST /v1/factors", f.handleEnroll)
	mux.HandleFunc("GET /v1/factors", f.handleList)
	mux.HandleFunc("DELETE /v1/factors/{id}", f.handleDelete)
	mux.HandleFunc("POST /v1/factors/{id}/challenge", f.handleChallenge)
	mux.HandleFunc("POST /v1/factors/{id}/verify", f.handleVerify)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBacking) URL() string { return f.srv.URL }

// totpCode computes the currently valid code for a factor's secret.
func (f *fakeBacking) totpCode(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// staleAccessToken re-signs an issued access token with an expiry in the
// past, as a client forwarding old tokens would present it.
func (f *fakeBacking) staleAccessToken(t *testing.T, access string) string {
	t.Helper()

	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(access, claims)
	require.NoError(t, err)
	claims["exp"] = time.Now().Add(-time.Minute).Unix()

	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(fakeSigningKey)
	require.NoError(t, err)
	return stale
}

// expireChallenge drops an open challenge as if its window lapsed.
func (f *fakeBacking) expireChallenge(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.challenges, id)
}

func (f *fakeBacking) challengeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challengeCalls
}

func (f *fakeBacking) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeBacking) issueTokens(w http.ResponseWriter, acct *fakeAccount, aal string) {
	claims := jwt.MapClaims{
		"sub": acct.id,
		"aal": aal,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(fakeSigningKey)
	require.NoError(f.t, err)

	refresh := f.nextID("rt")
	f.refreshTokens[refresh] = acct.id

	fakeWriteJSON(w, http.StatusOK, authkit.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		AAL:          aal,
	})
}

// authedAccount resolves the bearer token on a request to its account.
func (f *fakeBacking) authedAccount(r *http.Request) *fakeAccount {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := jwt.MapClaims{}
	_, err := jwt.NewParser().ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return fakeSigningKey, nil
	})
	if err != nil {
		return nil
	}
	sub, _ := claims.GetSubject()
	for _, acct := range f.accounts {
		if acct.id == sub {
			return acct
		}
	}
	return nil
}

func (f *fakeBacking) handleSignUp(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var req authkit.SignUpRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if _, ok := f.accounts[req.Email]; ok {
		fakeWriteJSON(w, http.StatusConflict, map[string]string{"error": authkit.ErrorCodeUserExists})
		return
	}

	acct := &fakeAccount{id: f.nextID("acct"), email: req.Email, password: req.Password}
	f.accounts[req.Email] = acct
	fakeWriteJSON(w, http.StatusOK, authkit.User{ID: acct.id, Email: acct.email})
}

func (f *fakeBacking) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	require.NoError(f.t, r.ParseForm())
	switch r.PostForm.Get("grant_type") {
	case "password":
		acct, ok := f.accounts[r.PostForm.Get("email")]
		if !ok || acct.password != r.PostForm.Get("password") {
			fakeWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": authkit.ErrorCodeInvalidGrant})
			return
		}
		f.issueTokens(w, acct, "aal1")

	case "refresh_token":
		accountID, ok := f.refreshTokens[r.PostForm.Get("refresh_token")]
		if !ok {
			fakeWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": authkit.ErrorCodeInvalidGrant})
			return
		}
		for _, acct := range f.accounts {
			if acct.id == accountID {
				f.issueTokens(w, acct, "aal1")
				return
			}
		}
		fakeWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": authkit.ErrorCodeInvalidGrant})

	default:
		fakeWriteJSON(w, http.StatusBadRequest, map[string]string{"error": authkit.ErrorCodeInvalidRequest})
	}
}

func (f *fakeBacking) handleEnroll(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct := f.authedAccount(r)
	if acct == nil {
		fakeWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	var req authkit.EnrollFactorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "fake-backing",
		AccountName: acct.email,
	})
	require.NoError(f.t, err)

	factor := &fakeFactor{id: f.nextID("factor"), ownerID: acct.id, secret: key.Secret()}
	f.factors[factor.id] = factor

	resp := authkit.EnrollFactorResponse{ID: factor.id, Type: "totp"}
	resp.TOTP.Secret = key.Secret()
	resp.TOTP.URI = key.URL()
	fakeWriteJSON(w, http.StatusOK, resp)
}

func (f *fakeBacking) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct := f.authedAccount(r)
	if acct == nil {
		fakeWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	var factors []authkit.Factor
	for _, fac := range f.factors {
		if fac.ownerID == acct.id {
			factors = append(factors, authkit.Factor{ID: fac.id, Type: "totp", Status: authkit.FactorStatusVerified})
		}
	}
	fakeWriteJSON(w, http.StatusOK, map[string]any{"factors": factors})
}

func (f *fakeBacking) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.authedAccount(r) == nil {
		fakeWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	id := r.PathValue("id")
	if _, ok := f.factors[id]; !ok {
		fakeWriteJSON(w, http.StatusNotFound, map[string]string{"error": authkit.ErrorCodeFactorNotFound})
		return
	}
	delete(f.factors, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeBacking) handleChallenge(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.authedAccount(r) == nil {
		fakeWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	id := r.PathValue("id")
	if _, ok := f.factors[id]; !ok {
		fakeWriteJSON(w, http.StatusNotFound, map[string]string{"error": authkit.ErrorCodeFactorNotFound})
		return
	}

	f.challengeCalls++
	chalID := f.nextID("chal")
	f.challenges[chalID] = id

	fakeWriteJSON(w, http.StatusOK, authkit.Challenge{
		ID:        chalID,
		FactorID:  id,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	})
}

func (f *fakeBacking) handleVerify(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct := f.authedAccount(r)
	if acct == nil {
		fakeWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	var req authkit.VerifyRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	factorID, ok := f.challenges[req.ChallengeID]
	if !ok || factorID != r.PathValue("id") {
		fakeWriteJSON(w, http.StatusBadRequest, map[string]string{"error": authkit.ErrorCodeChallengeExpired})
		return
	}

	factor := f.factors[factorID]
	if !totp.Validate(req.Code, factor.secret) {
		fakeWriteJSON(w, http.StatusBadRequest, map[string]string{"error": authkit.ErrorCodeInvalidCode})
		return
	}

	// Challenges are single use.
	delete(f.challenges, req.ChallengeID)
	f.issueTokens(w, acct, "aal2")
}

func fakeWriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
