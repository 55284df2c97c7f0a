package middleware

import (
	"context"
	"net/http"
	"strings"

	"accounts-service/config"
	"accounts-service/utils"
)

type contextKey string

const userClaimsKey contextKey = "userClaims"

// AuthMiddleware attaches the caller's token claims to the request context.
// Requests without a token pass through anonymously; a token that is present
// but invalid is rejected. With no secret configured tokens are ignored.
func AuthMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(cfg.Auth.AccessTokenSecret) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			token := tokenFromRequest(r, cfg.Auth.AccessCookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := utils.ParseToken(token, cfg.Auth.AccessTokenSecret, cfg.Auth.Issuer)
			if err != nil {
				writeErrorResponse(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*utils.Claims, bool) {
	claims, ok := ctx.Value(userClaimsKey).(*utils.Claims)
	return claims, ok
}

func ContextWithClaims(ctx context.Context, claims *utils.Claims) context.Context {
	return context.WithValue(ctx, userClaimsKey, claims)
}

// UsernameFromContext returns the authenticated username, or "".
func UsernameFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok && claims != nil {
		return claims.Username
	}
	return ""
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}
