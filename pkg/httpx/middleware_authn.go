package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/storefront/pkg/jwtx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}

// AuthnMiddleware requires a valid access token and injects its claims.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				desc := "token verification failed"
				if errors.Is(err, jwtx.ErrExpired) {
					desc = "token expired"
				}
				slogx.FromContext(ctx).Warn("jwt verify failed", "err", err)
				writeBearerError(w, desc)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(ctx, claims)))
		})
	}
}

// OptionalAuthnMiddleware injects claims when a valid bearer token is present
// and otherwise lets the request through untouched. Tenant resolution uses it
// to read the tid claim on public endpoints.
func OptionalAuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, ok := BearerToken(r); ok {
				if claims, err := v.Verify(raw); err == nil {
					r = r.WithContext(ContextWithClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	(&APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "invalid_token",
		Description: desc,
	}).WriteError(w)
}
