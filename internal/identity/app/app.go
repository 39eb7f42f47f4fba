package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crestvale/identity/internal/identity/event"
	httpapi "github.com/crestvale/identity/internal/identity/http"
	"github.com/crestvale/identity/internal/identity/service"
	"github.com/crestvale/identity/internal/identity/store"
	"github.com/crestvale/identity/internal/identity/store/drivers/sqlite"
	"github.com/crestvale/identity/internal/identity/wallet"
	"github.com/crestvale/identity/pkg/authkit"
	"github.com/crestvale/identity/pkg/jwtx"
	"github.com/crestvale/identity/pkg/oidcx"
	"github.com/crestvale/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"

	// discoveryRetryInterval paces issuer discovery retries while the
	// provider is unreachable. Endpoints answer NotReady in the meantime.
	discoveryRetryInterval = 15 * time.Second
)

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg    *Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	signer   *jwtx.KeyPair
	provider *oidcx.Client
	events   *event.Producer

	// Services
	federationService   *service.FederationService
	registrationService *service.RegistrationService
	mfaService          *service.MFAService
	challengeService    *service.ChallengeService
	stepUpService       *service.StepUpService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg *Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
			Version: BuildVersion,
			Env:     cfg.Environment,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSigner(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.provider = oidcx.New(oidcx.Config{
		IssuerURL:    cfg.OIDCIssuerURL,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		ExtraScopes:  cfg.OIDCExtraScopes,
	})
	app.events = event.NewProducer(cfg.KafkaBrokers)

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	// Eager issuer discovery; endpoints stay NotReady until it succeeds.
	discoveryCtx, stopDiscovery := context.WithCancel(context.Background())
	defer stopDiscovery()
	go app.runDiscovery(discoveryCtx)

	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.events.Close(); err != nil {
		app.logger.Error("error closing event producer", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// runDiscovery retries issuer discovery until it succeeds or the context is
// cancelled. Init is idempotent and concurrency-safe, so an interleaved
// lazy attempt from a request path is harmless.
func (app *Application) runDiscovery(ctx context.Context) {
	for {
		err := app.provider.Init(ctx)
		if err == nil {
			app.logger.Info("issuer discovery complete", "issuer", app.cfg.OIDCIssuerURL)
			return
		}
		app.logger.Warn("issuer discovery failed, retrying",
			"issuer", app.cfg.OIDCIssuerURL,
			"retry_in", discoveryRetryInterval,
			"error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(discoveryRetryInterval):
		}
	}
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSigner sets up the application token key pair, seeded when a seed is
// configured so tokens survive restarts.
func (app *Application) initSigner() error {
	var (
		kp  *jwtx.KeyPair
		err error
	)
	if seed := app.cfg.SigningSeed(); seed != nil {
		kp, err = jwtx.NewKeyPairFromSeed(app.cfg.SigningKeyID, seed)
	} else {
		app.logger.Warn("no signing key seed configured, tokens will not survive restarts")
		kp, err = jwtx.NewKeyPair(app.cfg.SigningKeyID)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.signer = kp
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	backing := authkit.NewClient(app.cfg.BackingAuthURL)
	wallets := wallet.NewClient(app.cfg.WalletServiceURL)

	app.federationService = &service.FederationService{
		Provider:     app.provider,
		RedirectBase: app.cfg.FrontendBaseURL,
	}

	app.registrationService = &service.RegistrationService{
		Store:        app.db,
		Backing:      backing,
		Wallet:       wallets,
		Events:       app.events,
		Signer:       app.signer,
		Issuer:       app.cfg.TokenIssuer,
		TokenTTL:     app.cfg.TokenTTL,
		ServerSecret: app.cfg.CredentialSecret,
		DefaultRole:  app.cfg.DefaultRole,
	}

	app.mfaService = &service.MFAService{
		Store:   app.db,
		Backing: backing,
		Issuer:  app.cfg.TokenIssuer,
	}

	app.challengeService = &service.ChallengeService{
		Store:   app.db,
		Backing: backing,
		Factors: app.mfaService,
	}

	app.stepUpService = &service.StepUpService{
		Store:        app.db,
		Backing:      backing,
		Signer:       app.signer,
		Issuer:       app.cfg.TokenIssuer,
		TokenTTL:     app.cfg.TokenTTL,
		ServerSecret: app.cfg.CredentialSecret,
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		app.cfg.TokenIssuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.FederationService = app.federationService
	router.RegistrationService = app.registrationService
	router.MFAService = app.mfaService
	router.ChallengeService = app.challengeService
	router.StepUpService = app.stepUpService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
