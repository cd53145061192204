package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldstream/server/internal/auth"
	"github.com/worldstream/server/internal/config"
	"github.com/worldstream/server/internal/generator"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/session"
	"github.com/worldstream/server/internal/streaming"
)

// SessionHandlers manages streaming sessions over HTTP.
type SessionHandlers struct {
	svc *Services
}

// NewSessionHandlers creates a new SessionHandlers instance.
func NewSessionHandlers(svc *Services) *SessionHandlers {
	return &SessionHandlers{svc: svc}
}

// CreateSession starts a streaming session and returns its stream token.
// POST /api/sessions
func (h *SessionHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
			auth.SendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
			return
		}
	}
	if err := h.svc.Validate.Struct(req); err != nil {
		auth.SendValidationError(w, err)
		return
	}

	opts, err := sessionOptions(h.svc.Config, req)
	if errors.Is(err, grid.ErrOutOfRange) {
		auth.SendError(w, http.StatusBadRequest, "InvalidPosition", err.Error())
		return
	}
	if err != nil {
		auth.SendError(w, http.StatusBadRequest, "InvalidSessionConfig", err.Error())
		return
	}

	s, err := h.svc.Registry.Create(opts)
	switch {
	case errors.Is(err, session.ErrTooManySessions):
		auth.SendError(w, http.StatusServiceUnavailable, "TooManySessions", err.Error())
		return
	case errors.Is(err, streaming.ErrInvalidConfig):
		auth.SendError(w, http.StatusBadRequest, "InvalidSessionConfig", err.Error())
		return
	case errors.Is(err, streaming.ErrFocusOutOfRange):
		auth.SendError(w, http.StatusBadRequest, "InvalidPosition", err.Error())
		return
	case err != nil:
		log.Printf("[Session] create failed: %v", err)
		auth.SendError(w, http.StatusInternalServerError, "InternalError", "Failed to create session")
		return
	}

	token, err := h.svc.JWT.GenerateStreamToken(s.ID)
	if err != nil {
		_ = h.svc.Registry.Remove(s.ID)
		log.Printf("[Session] token for %s failed: %v", s.ID, err)
		auth.SendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	auth.SendJSON(w, http.StatusCreated, SessionResponse{
		SessionID: s.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(h.svc.JWT.GetTokenExpiration()),
		Strategy:  s.Strategy,
		Config:    opts.Config,
		Resident:  s.Manager().Len(),
		StreamURL: "/ws",
	})
}

// GetSessionStats returns counters for one session.
// GET /api/sessions/{id}/stats
func (h *SessionHandlers) GetSessionStats(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := h.lookup(w, r, id)
	if !ok {
		return
	}
	auth.SendJSON(w, http.StatusOK, s.Stats())
}

// DeleteSession closes a session and drops its stream connection.
// DELETE /api/sessions/{id}
func (h *SessionHandlers) DeleteSession(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.lookup(w, r, id); !ok {
		return
	}
	h.svc.Hub.Disconnect(id)
	if err := h.svc.Registry.Remove(id); err != nil {
		auth.SendError(w, http.StatusNotFound, "SessionNotFound", "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions lists every live session.
// GET /api/admin/sessions
func (h *SessionHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	auth.SendJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": h.svc.Registry.List(),
	})
}

// lookup resolves id, allowing the session's own stream token or an admin.
func (h *SessionHandlers) lookup(w http.ResponseWriter, r *http.Request, id string) (*session.Session, bool) {
	claims, ok := auth.GetClaims(r)
	if !ok {
		auth.SendError(w, http.StatusUnauthorized, "MissingToken", "Authorization header required")
		return nil, false
	}
	if claims.Role != auth.RoleAdmin && claims.SessionID != id {
		auth.SendError(w, http.StatusForbidden, "InsufficientPermissions", "Token is not valid for this session")
		return nil, false
	}
	s, err := h.svc.Registry.Get(id)
	if err != nil {
		auth.SendError(w, http.StatusNotFound, "SessionNotFound", "Session not found")
		return nil, false
	}
	return s, true
}

// sessionOptions merges a request over the configured defaults. When the
// window shape changes but no water marks are given, marks are derived from
// the new window size so the defaults cannot make the request invalid.
func sessionOptions(cfg *config.Config, req CreateSessionRequest) (session.Options, error) {
	defaults := cfg.Streaming
	sc, err := defaults.ManagerConfig()
	if err != nil {
		return session.Options{}, err
	}

	reshaped := false
	if req.CellSize > 0 {
		sc.CellSize = req.CellSize
	}
	if req.Radius != nil && *req.Radius != sc.Radius {
		sc.Radius = *req.Radius
		reshaped = true
	}
	if req.Dims != 0 && grid.Dims(req.Dims) != sc.Dims {
		sc.Dims = grid.Dims(req.Dims)
		reshaped = true
	}
	if reshaped && req.HighWater == 0 && req.LowWater == 0 {
		window := sc.WindowSize()
		sc.HighWater = 2 * window
		sc.LowWater = window + window/2
	}
	if req.HighWater != 0 {
		sc.HighWater = req.HighWater
	}
	if req.LowWater != 0 {
		sc.LowWater = req.LowWater
	}
	for _, v := range req.Position {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return session.Options{}, fmt.Errorf("%w: position must be finite", grid.ErrOutOfRange)
		}
	}
	if req.FailurePolicy != "" {
		if sc.FailurePolicy, err = streaming.ParseFailurePolicy(req.FailurePolicy); err != nil {
			return session.Options{}, err
		}
	}
	if err := sc.Validate(); err != nil {
		return session.Options{}, err
	}

	name := req.Strategy
	if name == "" {
		name = defaults.Strategy
	}
	strategy, err := generator.New(name)
	if err != nil {
		return session.Options{}, err
	}

	seed := defaults.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	return session.Options{
		Config:   sc,
		Strategy: strategy,
		Seed:     seed,
		Position: mgl32.Vec3(req.Position),
		Profile:  defaults.Profile,
		Debug:    cfg.Logging.IsDebug(),
	}, nil
}
