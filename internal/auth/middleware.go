package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// ClaimsKey is the context key for JWT claims
	ClaimsKey ContextKey = "claims"
)

// Middleware authenticates requests with tokens from JWTService.
type Middleware struct {
	jwtService *JWTService
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(jwtService *JWTService) *Middleware {
	return &Middleware{jwtService: jwtService}
}

// Authenticate validates the bearer token and stores its claims in the
// request context. Browsers cannot set headers on a WebSocket handshake, so a
// token query parameter is accepted as well.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := extractToken(r)
		if !ok {
			SendError(w, http.StatusUnauthorized, "MissingToken", "Authorization header required")
			return
		}

		claims, err := m.jwtService.ValidateToken(tokenString)
		if err != nil {
			SendError(w, http.StatusUnauthorized, "InvalidToken", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole middleware ensures the token has the given role.
func (m *Middleware) RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role, ok := GetRole(r); !ok || role != requiredRole {
				SendError(w, http.StatusForbidden, "InsufficientPermissions", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// GetClaims extracts JWT claims from request context
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetRole extracts the token role from request context
func GetRole(r *http.Request) (string, bool) {
	claims, ok := GetClaims(r)
	if !ok {
		return "", false
	}
	return claims.Role, true
}

// GetSessionID extracts the session a stream token is bound to.
func GetSessionID(r *http.Request) (string, bool) {
	claims, ok := GetClaims(r)
	if !ok || claims.SessionID == "" {
		return "", false
	}
	return claims.SessionID, true
}
