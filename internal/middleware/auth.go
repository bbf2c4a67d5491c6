package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/loomworks/millgo/internal/utils"
)

type contextKey string

// AuthorizedContextKey marks a request as carrying operator authorization.
// The engine's mutating services take this as their authorized precondition.
const AuthorizedContextKey contextKey = "authorized"

// Authorized reports whether the request passed the operator gate.
func Authorized(r *http.Request) bool {
	v, _ := r.Context().Value(AuthorizedContextKey).(bool)
	return v
}

// AuthMiddleware verifies the operator token on mutating routes
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			// Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			if _, err := utils.ValidateToken(parts[1], jwtSecret); err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), AuthorizedContextKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
