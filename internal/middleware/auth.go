package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zzjunior/whatsapp-checker-api/internal/auth"
	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

type contextKey string

const (
	claimsKey contextKey = "admin_claims"
	tokenKey  contextKey = "api_token"
)

// ClaimsFromContext returns the admin session claims set by AdminAuth.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// TokenFromContext returns the API token set by APITokenAuth.
func TokenFromContext(ctx context.Context) (*domain.APIToken, bool) {
	token, ok := ctx.Value(tokenKey).(*domain.APIToken)
	return token, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// AdminAuth requires a valid admin-session JWT and stores its claims in the
// request context.
func AdminAuth(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "authorization header is required")
				return
			}

			claims, err := authSvc.ValidateJWT(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates a route on the admin role. Must run after AdminAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Role != domain.RoleAdmin {
			writeAuthError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APITokenAuth authenticates check requests with a bearer API token and
// stores the token in the context. The quota gate runs here, at exactly the
// limit; usage itself is counted downstream, only when a check produces an
// answer.
func APITokenAuth(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := bearerToken(r)
			if secret == "" {
				secret = r.Header.Get("X-API-Token")
			}
			if secret == "" {
				writeAuthError(w, http.StatusUnauthorized, "API token is required")
				return
			}

			token, err := authSvc.VerifyAPIToken(r.Context(), secret)
			if err != nil {
				switch err.(type) {
				case *domain.QuotaExceededError:
					writeAuthError(w, http.StatusTooManyRequests, err.Error())
				default:
					writeAuthError(w, http.StatusUnauthorized, "invalid API token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
