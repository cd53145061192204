package api

import (
	"net/http"
	"strings"

	"github.com/worldstream/server/internal/auth"
)

// SetupAdminRoutes registers admin login and management routes.
func SetupAdminRoutes(mux *http.ServeMux, svc *Services) {
	rl := svc.Config.RateLimit
	authHandlers := auth.NewHandlers(svc.JWT, svc.Passwords)
	sessions := NewSessionHandlers(svc)
	layouts := NewLayoutHandlers(svc)

	login := RateLimitMiddleware(rl.AuthLimit, rl.AuthWindow)(http.HandlerFunc(authHandlers.AdminLogin))
	mux.Handle("/api/admin/login", login)

	adminHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin"), "/")

		switch {
		case r.Method == http.MethodGet && path == "sessions":
			sessions.ListSessions(w, r)
		case r.Method == http.MethodDelete && strings.HasPrefix(path, "sessions/"):
			sessions.DeleteSession(w, r, strings.TrimPrefix(path, "sessions/"))
		case r.Method == http.MethodDelete && strings.HasPrefix(path, "layouts/"):
			layouts.DeleteLayout(w, r, strings.TrimPrefix(path, "layouts/"))
		default:
			http.NotFound(w, r)
		}
	})

	adminOnly := svc.Auth.RequireRole(auth.RoleAdmin)(adminHandler)
	rateLimited := TokenRateLimitMiddleware(rl.UserLimit, rl.UserWindow)(adminOnly)
	authenticated := svc.Auth.Authenticate(rateLimited)

	mux.Handle("/api/admin/", authenticated)
	mux.Handle("/api/admin", authenticated)
}
