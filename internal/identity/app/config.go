package app

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/crestvale/identity/pkg/cryptox"
)

// Config holds all configuration for the identity service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	Port                int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	DatabaseFile string `env:"IDENTITY_DATABASE_FILE" envDefault:"identity.db"`

	// External identity provider (OIDC relying party)
	OIDCIssuerURL    string   `env:"OIDC_ISSUER_URL"`
	OIDCClientID     string   `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string   `env:"OIDC_CLIENT_SECRET"`
	OIDCExtraScopes  []string `env:"OIDC_EXTRA_SCOPES" envSeparator:","`

	// FrontendBaseURL, when set, restricts callback redirect URIs to the
	// frontend origin.
	FrontendBaseURL string `env:"FRONTEND_BASE_URL"`

	// Downstream services
	BackingAuthURL   string `env:"BACKING_AUTH_URL" envDefault:"http://localhost:9096"`
	WalletServiceURL string `env:"WALLET_SERVICE_URL" envDefault:"http://localhost:9097"`

	// Kafka (optional; empty disables event publishing)
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Application token signing
	TokenIssuer    string        `env:"IDENTITY_TOKEN_ISSUER" envDefault:"crestvale-identity"`
	TokenTTL       time.Duration `env:"IDENTITY_TOKEN_TTL" envDefault:"15m"`
	SigningKeyID   string        `env:"IDENTITY_SIGNING_KEY_ID" envDefault:"identity-1"`
	SigningKeySeed string        `env:"IDENTITY_SIGNING_KEY_SEED"` // base64, 32 bytes; empty means ephemeral

	// Secret for deriving deterministic backing-service credentials
	CredentialSecret string `env:"IDENTITY_CREDENTIAL_SECRET" envDefault:"insecure-dev-credential-secret"`

	DefaultRole string `env:"IDENTITY_DEFAULT_ROLE" envDefault:"investor"`
}

// LoadConfig reads configuration from the environment, with an optional
// .env file for local development.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.Port)
	}
	if cfg.OIDCIssuerURL == "" {
		return nil, fmt.Errorf("OIDC_ISSUER_URL must be set")
	}
	if cfg.OIDCClientID == "" {
		return nil, fmt.Errorf("OIDC_CLIENT_ID must be set")
	}

	// In non-development environments, the derivation secret must be an
	// explicitly provisioned value. Backing credentials are HMAC outputs of
	// this secret; a guessable secret makes every account guessable.
	if cfg.Environment != "development" {
		if err := cryptox.ValidateCredentialSecret(cfg.CredentialSecret); err != nil {
			return nil, fmt.Errorf("IDENTITY_CREDENTIAL_SECRET must be explicitly set in %q mode: %w", cfg.Environment, err)
		}
		if len(cfg.CredentialSecret) < 32 {
			return nil, fmt.Errorf("IDENTITY_CREDENTIAL_SECRET must be at least 32 characters long, got %d", len(cfg.CredentialSecret))
		}
		if cfg.SigningKeySeed == "" {
			return nil, fmt.Errorf("IDENTITY_SIGNING_KEY_SEED must be set in %q mode, ephemeral keys invalidate tokens on restart", cfg.Environment)
		}
	}

	if cfg.SigningKeySeed != "" {
		seed, err := base64.StdEncoding.DecodeString(cfg.SigningKeySeed)
		if err != nil {
			return nil, fmt.Errorf("IDENTITY_SIGNING_KEY_SEED is not valid base64: %w", err)
		}
		if len(seed) != 32 {
			return nil, fmt.Errorf("IDENTITY_SIGNING_KEY_SEED must decode to 32 bytes, got %d", len(seed))
		}
	}

	return cfg, nil
}

// SigningSeed returns the decoded signing seed, or nil when ephemeral keys
// are in use. LoadConfig has already validated the encoding.
func (c *Config) SigningSeed() []byte {
	if c.SigningKeySeed == "" {
		return nil
	}
	seed, _ := base64.StdEncoding.DecodeString(c.SigningKeySeed)
	return seed
}
