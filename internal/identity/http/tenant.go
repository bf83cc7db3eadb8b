package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/aussiebroadwan/storefront/pkg/httpx"
)

// StoreDomainHeader names the store a request is for.
const StoreDomainHeader = "X-Store-Domain"

type tenantCtxKey struct{}

func tenantFromContext(ctx context.Context) (domain.Tenant, bool) {
	t, ok := ctx.Value(tenantCtxKey{}).(domain.Tenant)
	return t, ok
}

// tenantHint collects the store hints of a request. Claims come from the
// authn middleware when it ran before.
func tenantHint(r *http.Request) service.TenantHint {
	hint := service.TenantHint{
		Domain: r.Header.Get(StoreDomainHeader),
		Host:   r.Host,
	}
	if c, ok := httpx.ClaimsFromContext(r.Context()); ok {
		hint.TokenTenantID = c.TenantID
	}
	return hint
}

// TenantMiddleware resolves the store for the request and rejects it when
// the hints don't name an active store or disagree with each other.
func TenantMiddleware(resolver *service.TenantResolver) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := resolver.Resolve(r.Context(), tenantHint(r))
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantCtxKey{}, t)))
		})
	}
}

// RequireRole gates a tenant-scoped route on the caller's membership role.
// It must run after AuthnMiddleware and TenantMiddleware.
func RequireRole(roles *service.RoleAuthorizer, minRole domain.Role) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpx.UserIDFromContext(r.Context())
			t, ok := tenantFromContext(r.Context())
			if !ok {
				writeError(w, r, service.ErrNoTenantHint)
				return
			}

			if err := roles.Require(r.Context(), userID, t.ID, minRole); err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
