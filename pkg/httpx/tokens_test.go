package httpx

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractSessionTokensPrefersHeaders(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/v1/auth/mfa/enroll", nil)
	r.Header.Set(HeaderAccessToken, "header-access")
	r.Header.Set(HeaderRefreshToken, "header-refresh")

	got := ExtractSessionTokens(r, SessionTokens{AccessToken: "body-access", RefreshToken: "body-refresh"})
	require.Equal(t, "header-access", got.AccessToken)
	require.Equal(t, "header-refresh", got.RefreshToken)
}

func TestExtractSessionTokensHeaderPairWinsEvenWithoutRefresh(t *testing.T) {
	t.Parallel()

	// A header access token selects the header pair wholesale; the body
	// refresh token must not leak into it.
	r := httptest.NewRequest("POST", "/v1/auth/mfa/enroll", nil)
	r.Header.Set(HeaderAccessToken, "header-access")

	got := ExtractSessionTokens(r, SessionTokens{AccessToken: "body-access", RefreshToken: "body-refresh"})
	require.Equal(t, "header-access", got.AccessToken)
	require.Empty(t, got.RefreshToken)
}

func TestExtractSessionTokensFallsBackToBody(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/v1/auth/mfa/enroll", nil)

	got := ExtractSessionTokens(r, SessionTokens{AccessToken: " body-access ", RefreshToken: "body-refresh"})
	require.Equal(t, "body-access", got.AccessToken)
	require.Equal(t, "body-refresh", got.RefreshToken)
}

func TestExtractSessionTokensEmpty(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/v1/auth/mfa/enroll", nil)
	got := ExtractSessionTokens(r, SessionTokens{})
	require.True(t, got.Empty())
}
