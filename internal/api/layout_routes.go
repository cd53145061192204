package api

import (
	"net/http"
	"strings"
)

// SetupLayoutRoutes registers layout generation and archive routes.
func SetupLayoutRoutes(mux *http.ServeMux, svc *Services) {
	handlers := NewLayoutHandlers(svc)
	rl := svc.Config.RateLimit
	generateLimit := RateLimitMiddleware(rl.UserLimit, rl.UserWindow)
	generate := generateLimit(http.HandlerFunc(handlers.GenerateLayout))

	layoutHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/layouts"), "/")

		switch {
		case path == "" && r.Method == http.MethodPost:
			generate.ServeHTTP(w, r)
		case path == "" && r.Method == http.MethodGet:
			handlers.ListLayouts(w, r)
		case path != "" && !strings.Contains(path, "/") && r.Method == http.MethodGet:
			handlers.GetLayout(w, r, path)
		default:
			http.NotFound(w, r)
		}
	})

	mux.Handle("/api/layouts/", layoutHandler)
	mux.Handle("/api/layouts", layoutHandler)
}
