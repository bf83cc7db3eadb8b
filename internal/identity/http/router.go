package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
	"github.com/aussiebroadwan/storefront/pkg/httpx"
	"github.com/aussiebroadwan/storefront/pkg/jwtx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"

	_ "github.com/aussiebroadwan/storefront/api/identity" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics

	store          store.Store
	AccountService *service.AccountService
	TenantService  *service.TenantService
	Roles          *service.RoleAuthorizer
	Resolver       *service.TenantResolver

	// QueueCheck reports notification queue health on /readyz. Optional.
	QueueCheck func(context.Context) error

	// TrustProxyHeaders takes client IPs from X-Forwarded-For/X-Real-IP for
	// rate limiting. Set it before ApplyRoutes.
	TrustProxyHeaders bool
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		metrics:      m,
	}

	// Metrics must stay last so it sees the request the mux matches
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		MetricsMiddleware(m),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	if r.TrustProxyHeaders {
		r.middlewares = append([]httpx.Middleware{httpx.RealIPMiddleware}, r.middlewares...)
	}

	r.registerAuth()
	r.registerStores()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Storefront Identity API
//	@version		0.1.0
//	@description	Accounts, sessions and store membership for the storefront platform.
//	@description
//	@description				Access tokens are short-lived JWTs. Refresh tokens are single use and rotate on every refresh.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/storefront
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

func (r *Router) registerAuth() {
	h := &AuthHandler{Accounts: r.AccountService, Resolver: r.Resolver}
	authn := httpx.AuthnMiddleware(r.keys.AccessVerifier())

	// Credential and code endpoints are limited per IP and per email so one
	// address can't be brute forced from a single host
	strict := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"))
	}

	r.Mux.Handle("POST /v1/auth/register", strict(h.HandleRegister))
	r.Mux.Handle("POST /v1/auth/login", strict(h.HandleLogin))
	r.Mux.Handle("POST /v1/auth/verify-otp", strict(h.HandleVerifyOTP))
	r.Mux.Handle("POST /v1/auth/resend-otp", strict(h.HandleResendOTP))
	r.Mux.Handle("POST /v1/auth/reset-password/request", strict(h.HandleResetRequest))
	r.Mux.Handle("POST /v1/auth/reset-password/confirm", strict(h.HandleResetConfirm))

	// Refresh and logout carry an unguessable token, moderate limit by IP
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/change-password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			authn,
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /v1/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			authn,
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("PATCH /v1/me",
		httpx.Chain(http.HandlerFunc(h.HandleUpdateMe),
			authn,
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerStores() {
	h := &StoreHandler{Tenants: r.TenantService, Roles: r.Roles}
	authn := httpx.AuthnMiddleware(r.keys.AccessVerifier())
	tenant := TenantMiddleware(r.Resolver)

	r.Mux.Handle("POST /v1/stores",
		httpx.Chain(http.HandlerFunc(h.HandleCreate),
			authn,
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// Tenant-scoped: authn, then resolve the store, then check the role
	r.Mux.Handle("GET /v1/stores/current",
		httpx.Chain(http.HandlerFunc(h.HandleCurrent),
			authn,
			tenant,
			RequireRole(r.Roles, domain.RoleMember),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/stores/current/members",
		httpx.Chain(http.HandlerFunc(h.HandleListMembers),
			authn,
			tenant,
			RequireRole(r.Roles, domain.RoleStaff),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("PUT /v1/stores/current/members",
		httpx.Chain(http.HandlerFunc(h.HandleGrantRole),
			authn,
			tenant,
			RequireRole(r.Roles, domain.RoleAdmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
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
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys, r.QueueCheck),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}
}
