package api

import (
	"net/http"

	"github.com/worldstream/server/internal/auth"
)

type healthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}

// SetupHealthRoutes registers GET /health.
func SetupHealthRoutes(mux *http.ServeMux, svc *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			auth.SendError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "Use GET")
			return
		}
		auth.SendJSON(w, http.StatusOK, healthResponse{
			Status:      "ok",
			Service:     "worldstream-server",
			Sessions:    svc.Registry.Len(),
			Connections: svc.Hub.Count(),
		})
	})
}
