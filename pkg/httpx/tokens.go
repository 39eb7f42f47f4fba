package httpx

import (
	"net/http"
	"strings"
)

// Header names for the backing-service session token transport. Accepting
// tokens from headers is an interoperability convenience; body and header
// transport must behave identically.
const (
	HeaderAccessToken  = "X-Session-Access-Token"
	HeaderRefreshToken = "X-Session-Refresh-Token"
)

// SessionTokens is a backing-service access/refresh token pair supplied by
// the caller.
type SessionTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether no access token was supplied.
func (t SessionTokens) Empty() bool { return t.AccessToken == "" }

// ExtractSessionTokens resolves the caller's backing-service session tokens
// from dedicated headers or the already-decoded request body. Headers take
// priority: when a header access token is present the entire header pair is
// used and the body pair is ignored.
func ExtractSessionTokens(r *http.Request, body SessionTokens) SessionTokens {
	headerAccess := strings.TrimSpace(r.Header.Get(HeaderAccessToken))
	if headerAccess != "" {
		return SessionTokens{
			AccessToken:  headerAccess,
			RefreshToken: strings.TrimSpace(r.Header.Get(HeaderRefreshToken)),
		}
	}

	return SessionTokens{
		AccessToken:  strings.TrimSpace(body.AccessToken),
		RefreshToken: strings.TrimSpace(body.RefreshToken),
	}
}
