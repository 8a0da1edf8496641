package user

import (
	"context"
	"net/http"

	"github.com/AzeemWaqarr/wattwise/internal/httpx"
)

type claimsKey struct{}

// TokenAuthenticator is satisfied by *Service.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (Claims, error)
}

type Authenticator struct {
	tokens TokenAuthenticator
}

func NewAuthenticator(tokens TokenAuthenticator) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Middleware requires a valid, unrevoked bearer token and stores its claims
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := httpx.BearerToken(r)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := a.tokens.Authenticate(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Role != RoleAdmin {
			httpx.WriteError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}
