package http

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

// stubBacking is a minimal in-process backing auth service covering the
// endpoints the handlers reach: signup, grants, factor enrollment and
// challenges. Factor secrets are real TOTP secrets.
type stubBacking struct {
	srv *httptest.Server
	t   *testing.T

	mu         sync.Mutex
	accounts   map[string]*stubAccount // keyed by email
	secrets    map[string]string       // factor id -> TOTP secret
	owners     map[string]string       // factor id -> account id
	challenges map[string]string       // challenge id -> factor id
	refresh    map[string]string       // refresh token -> account id
	seq        int
}

type stubAccount struct {
	id       string
	email    string
	password string
}

var stubSigningKey = []byte("stub-backing-hmac-key")

func newStubBacking(t *testing.T) *stubBacking {
	t.Helper()

	s := &stubBacking{
		t:          t,
		accounts:   make(map[string]*stubAccount),
		secrets:    make(map[string]string),
		owners:     make(map[string]string),
		challenges: make(map[string]string),
		refresh:    make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/signup", s.handleSignUp)
	mux.HandleFunc("POST /v1/token", s.handleToken)
	mux.HandleFunc("POST /v1/factors", s.handleEnroll)
	mux.HandleFunc("DELETE /v1/factors/{id}", s.handleDelete)
	mux.HandleFunc("POST /v1/factors/{id}/challenge", s.handleChallenge)
	mux.HandleFunc("POST /v1/factors/{id}/verify", s.handleVerify)

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubBacking) URL() string { return s.srv.URL }

func (s *stubBacking) code(t *testing.T, factorID string) string {
	t.Helper()

	s.mu.Lock()
	secret := s.secrets[factorID]
	s.mu.Unlock()
	require.NotEmpty(t, secret)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func (s *stubBacking) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *stubBacking) grant(w http.ResponseWriter, acct *stubAccount, aal string) {
	claims := jwt.MapClaims{
		"sub": acct.id,
		"aal": aal,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(stubSigningKey)
	require.NoError(s.t, err)

	rt := s.nextID("rt")
	s.refresh[rt] = acct.id

	stubWriteJSON(w, http.StatusOK, authkit.TokenResponse{
		AccessToken:  access,
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		AAL:          aal,
	})
}

func (s *stubBacking) bearer(r *http.Request) *stubAccount {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := jwt.MapClaims{}
	_, err := jwt.NewParser().ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return stubSigningKey, nil
	})
	if err != nil {
		return nil
	}
	sub, _ := claims.GetSubject()
	for _, acct := range s.accounts {
		if acct.id == sub {
			return acct
		}
	}
	return nil
}

func (s *stubBacking) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req authkit.SignUpRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if _, ok := s.accounts[req.Email]; ok {
		stubWriteJSON(w, http.StatusConflict, map[string]string{"error": authkit.ErrorCodeUserExists})
		return
	}
	acct := &stubAccount{id: s.nextID("acct"), email: req.Email, password: req.Password}
	s.accounts[req.Email] = acct
	stubWriteJSON(w, http.StatusOK, authkit.User{ID: acct.id, Email: acct.email})
}

func (s *stubBacking) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	require.NoError(s.t, r.ParseForm())
	switch r.PostForm.Get("grant_type") {
	case "password":
		acct, ok := s.accounts[r.PostForm.Get("email")]
		if !ok || acct.password != r.PostForm.Get("password") {
			stubWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": authkit.ErrorCodeInvalidGrant})
			return
		}
		s.grant(w, acct, "aal1")

	case "refresh_token":
		accountID, ok := s.refresh[r.PostForm.Get("refresh_token")]
		if !ok {
			stubWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": authkit.ErrorCodeInvalidGrant})
			return
		}
		for _, acct := range s.accounts {
			if acct.id == accountID {
				s.grant(w, acct, "aal1")
				return
			}
		}
		stubWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": authkit.ErrorCodeInvalidGrant})

	default:
		stubWriteJSON(w, http.StatusBadRequest, map[string]string{"error": authkit.ErrorCodeInvalidRequest})
	}
}

func (s *stubBacking) handleEnroll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.bearer(r)
	if acct == nil {
		stubWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "stub-backing", AccountName: acct.email})
	require.NoError(s.t, err)

	id := s.nextID("factor")
	s.secrets[id] = key.Secret()
	s.owners[id] = acct.id

	resp := authkit.EnrollFactorResponse{ID: id, Type: "totp"}
	resp.TOTP.Secret = key.Secret()
	resp.TOTP.URI = key.URL()
	stubWriteJSON(w, http.StatusOK, resp)
}

func (s *stubBacking) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bearer(r) == nil {
		stubWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	id := r.PathValue("id")
	if _, ok := s.secrets[id]; !ok {
		stubWriteJSON(w, http.StatusNotFound, map[string]string{"error": authkit.ErrorCodeFactorNotFound})
		return
	}
	delete(s.secrets, id)
	delete(s.owners, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *stubBacking) handleChallenge(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bearer(r) == nil {
		stubWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	id := r.PathValue("id")
	if _, ok := s.secrets[id]; !ok {
		stubWriteJSON(w, http.StatusNotFound, map[string]string{"error": authkit.ErrorCodeFactorNotFound})
		return
	}

	chalID := s.nextID("chal")
	s.challenges[chalID] = id
	stubWriteJSON(w, http.StatusOK, authkit.Challenge{
		ID:        chalID,
		FactorID:  id,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	})
}

func (s *stubBacking) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.bearer(r)
	if acct == nil {
		stubWriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	var req authkit.VerifyRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	factorID, ok := s.challenges[req.ChallengeID]
	if !ok || factorID != r.PathValue("id") {
		stubWriteJSON(w, http.StatusBadRequest, map[string]string{"error": authkit.ErrorCodeChallengeExpired})
		return
	}
	if !totp.Validate(req.Code, s.secrets[factorID]) {
		stubWriteJSON(w, http.StatusBadRequest, map[string]string{"error": authkit.ErrorCodeInvalidCode})
		return
	}

	delete(s.challenges, req.ChallengeID)
	s.grant(w, acct, "aal2")
}

func stubWriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
