package api

import (
	"net/http"
	"strings"
)

// SetupSessionRoutes registers session management routes.
func SetupSessionRoutes(mux *http.ServeMux, svc *Services) {
	handlers := NewSessionHandlers(svc)
	rl := svc.Config.RateLimit

	create := RateLimitMiddleware(rl.AuthLimit*4, rl.AuthWindow)(http.HandlerFunc(handlers.CreateSession))
	perToken := TokenRateLimitMiddleware(rl.UserLimit, rl.UserWindow)
	authenticated := func(fn http.HandlerFunc) http.Handler {
		return svc.Auth.Authenticate(perToken(fn))
	}

	sessionHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
		id, rest, _ := strings.Cut(path, "/")

		switch {
		case path == "" && r.Method == http.MethodPost:
			create.ServeHTTP(w, r)
		case id != "" && rest == "stats" && r.Method == http.MethodGet:
			authenticated(func(w http.ResponseWriter, r *http.Request) {
				handlers.GetSessionStats(w, r, id)
			}).ServeHTTP(w, r)
		case id != "" && rest == "" && r.Method == http.MethodDelete:
			authenticated(func(w http.ResponseWriter, r *http.Request) {
				handlers.DeleteSession(w, r, id)
			}).ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	mux.Handle("/api/sessions/", sessionHandler)
	mux.Handle("/api/sessions", sessionHandler)
}
