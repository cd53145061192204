package api

import (
	"database/sql"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/worldstream/server/internal/auth"
	"github.com/worldstream/server/internal/config"
	"github.com/worldstream/server/internal/database"
	"github.com/worldstream/server/internal/session"
)

// Services bundles what the HTTP handlers share.
type Services struct {
	Config    *config.Config
	Registry  *session.Registry
	Layouts   *database.LayoutStorage
	JWT       *auth.JWTService
	Passwords *auth.PasswordService
	Auth      *auth.Middleware
	Validate  *validator.Validate
	Hub       *StreamHub
}

// NewServices wires the handler dependencies from configuration and an open
// layout archive.
func NewServices(cfg *config.Config, db *sql.DB) *Services {
	jwtService := auth.NewJWTService(cfg)
	return &Services{
		Config:    cfg,
		Registry:  session.NewRegistry(cfg.Streaming.MaxSessions, cfg.Streaming.SessionIdle),
		Layouts:   database.NewLayoutStorage(db, cfg.Database.Driver),
		JWT:       jwtService,
		Passwords: auth.NewPasswordService(cfg),
		Auth:      auth.NewMiddleware(jwtService),
		Validate:  validator.New(),
		Hub:       NewStreamHub(),
	}
}

// NewRouter registers every route and wraps the mux in the global
// middleware chain.
func NewRouter(svc *Services) http.Handler {
	mux := http.NewServeMux()
	SetupHealthRoutes(mux, svc)
	SetupSessionRoutes(mux, svc)
	SetupLayoutRoutes(mux, svc)
	SetupAdminRoutes(mux, svc)
	SetupStreamRoutes(mux, svc)

	cfg := svc.Config
	var handler http.Handler = mux
	handler = RateLimitMiddleware(cfg.RateLimit.GlobalLimit, cfg.RateLimit.GlobalWindow)(handler)
	handler = CORSMiddleware(cfg.Server.AllowedOrigins)(handler)
	handler = auth.SecurityHeaders(cfg.Server.IsProduction())(handler)
	return handler
}
