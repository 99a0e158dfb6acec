package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"exam-portal/internal/httpx"
)

type contextKey struct{}

type TokenParser interface {
	ParseToken(token string) (*Claims, error)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func JWTMiddleware(parser TokenParser) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", errMissingHeader)
				return
			}
			bearer := strings.SplitN(authHeader, " ", 2)
			if len(bearer) != 2 || bearer[0] != "Bearer" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", errTokenFormat)
				return
			}
			claims, err := parser.ParseToken(bearer[1])
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole must run after JWTMiddleware.
func RequireRole(role string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			if claims.Role != role {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", errPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
