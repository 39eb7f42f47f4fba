package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/crestvale/identity/internal/identity/service"
	"github.com/crestvale/identity/internal/identity/store"
	"github.com/crestvale/identity/pkg/httpx"
	"github.com/crestvale/identity/pkg/jwtx"
	"github.com/crestvale/identity/pkg/slogx"

	_ "github.com/crestvale/identity/api/identity" // Swagger docs
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store               store.Store
	FederationService   *service.FederationService
	RegistrationService *service.RegistrationService
	MFAService          *service.MFAService
	ChallengeService    *service.ChallengeService
	StepUpService       *service.StepUpService
}

func NewRouter(
	verifier jwtx.Verifier,
	issuer string,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.MetricsMiddleware("identity"),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerFederation()
	r.registerMFA()
	r.registerStepUp()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Crestvale Identity Service API
//	@version		0.1.0
//	@description	Federated login (OIDC authorization code with PKCE) and step-up TOTP MFA for the Crestvale platform.
//	@description
//	@description				Application tokens are signed with EdDSA and carry an assurance-level claim (aal1 or aal2).
//	@description
//	@description				All routes are versioned under the /v1 prefix.
//
//	@contact.name				Crestvale Platform Team
//	@contact.url				https://github.com/crestvale/identity
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerFederation() {
	h := &FederationHandler{
		Federation:   r.FederationService,
		Registration: r.RegistrationService,
	}

	// POST /authorize-url - lenient rate limit (builds a URL, no upstream call)
	r.Mux.Handle("POST /v1/auth/federated/authorize-url",
		httpx.Chain(http.HandlerFunc(h.HandleAuthorizeURL),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /callback - moderate rate limit (one provider round trip per call)
	r.Mux.Handle("POST /v1/auth/federated/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /complete-registration - strict rate limit by IP (public signup endpoint)
	r.Mux.Handle("POST /v1/auth/federated/complete-registration",
		httpx.Chain(http.HandlerFunc(h.HandleCompleteRegistration),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}
	ch := &ChallengeHandler{ChallengeService: r.ChallengeService}

	// Read-only posture endpoints - lenient rate limit by user
	securedEnabled := httpx.Chain(http.HandlerFunc(h.HandleEnabled),
		httpx.AuthnMiddleware(r.verifier, r.issuer),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)
	securedStatus := httpx.Chain(http.HandlerFunc(h.HandleStatus),
		httpx.AuthnMiddleware(r.verifier, r.issuer),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)
	securedFactors := httpx.Chain(http.HandlerFunc(h.HandleFactors),
		httpx.AuthnMiddleware(r.verifier, r.issuer),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)

	// POST /enroll - strict rate limit by user
	securedEnroll := httpx.Chain(http.HandlerFunc(h.HandleEnroll),
		httpx.AuthnMiddleware(r.verifier, r.issuer),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	// POST /unenroll - moderate rate limit by user
	securedUnenroll := httpx.Chain(http.HandlerFunc(h.HandleUnenroll),
		httpx.AuthnMiddleware(r.verifier, r.issuer),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	// POST /challenge - moderate rate limit by user
	securedChallenge := httpx.Chain(http.HandlerFunc(ch.HandleChallenge),
		httpx.AuthnMiddleware(r.verifier, r.issuer),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	// POST /verify - strict rate limit by user (prevent brute force of TOTP codes)
	securedVerify := httpx.Chain(http.HandlerFunc(ch.HandleVerify),
		httpx.AuthnMiddleware(r.verifier, r.issuer),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	r.Mux.Handle("GET /v1/auth/mfa/enabled", securedEnabled)
	r.Mux.Handle("GET /v1/auth/mfa/status", securedStatus)
	r.Mux.Handle("GET /v1/auth/mfa/factors", securedFactors)
	r.Mux.Handle("POST /v1/auth/mfa/enroll", securedEnroll)
	r.Mux.Handle("POST /v1/auth/mfa/unenroll", securedUnenroll)
	r.Mux.Handle("POST /v1/auth/mfa/challenge", securedChallenge)
	r.Mux.Handle("POST /v1/auth/mfa/verify", securedVerify)
}

func (r *Router) registerStepUp() {
	h := &LoginVerifyHandler{StepUpService: r.StepUpService}

	// POST /login-verify - strict rate limit by IP (public, pre-final-token)
	r.Mux.Handle("POST /v1/auth/mfa/login-verify",
		httpx.Chain(http.HandlerFunc(h.HandleLoginVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.FederationService),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
