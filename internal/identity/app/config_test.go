package app

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("OIDC_ISSUER_URL", "https://idp.example.com")
	t.Setenv("OIDC_CLIENT_ID", "crestvale-app")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "identity.db", cfg.DatabaseFile)
	require.Equal(t, "crestvale-identity", cfg.TokenIssuer)
	require.Equal(t, "investor", cfg.DefaultRole)
	require.Nil(t, cfg.SigningSeed())
}

func TestLoadConfigRequiresProvider(t *testing.T) {
	t.Setenv("OIDC_ISSUER_URL", "")
	t.Setenv("OIDC_CLIENT_ID", "crestvale-app")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "OIDC_ISSUER_URL")
}

func TestLoadConfigRejectsPlaceholderSecretOutsideDevelopment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("IDENTITY_SIGNING_KEY_SEED", base64.StdEncoding.EncodeToString(make([]byte, 32)))

	_, err := LoadConfig()
	require.ErrorContains(t, err, "IDENTITY_CREDENTIAL_SECRET")

	t.Setenv("IDENTITY_CREDENTIAL_SECRET", "an-explicitly-provisioned-secret-value")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.SigningSeed(), 32)
}

func TestLoadConfigValidatesSeed(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("IDENTITY_SIGNING_KEY_SEED", "not base64!")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "base64")

	t.Setenv("IDENTITY_SIGNING_KEY_SEED", base64.StdEncoding.EncodeToString(make([]byte, 16)))
	_, err = LoadConfig()
	require.ErrorContains(t, err, "32 bytes")
}
