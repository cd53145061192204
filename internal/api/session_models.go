package api

import (
	"time"

	"github.com/worldstream/server/internal/streaming"
)

// CreateSessionRequest is the body of POST /api/sessions. Omitted fields use
// the server's streaming defaults.
type CreateSessionRequest struct {
	Strategy      string     `json:"strategy,omitempty" validate:"omitempty,oneof=floor city rooms"`
	CellSize      float32    `json:"cell_size,omitempty" validate:"omitempty,gt=0,lte=10000"`
	Radius        *int       `json:"radius,omitempty" validate:"omitempty,min=0,max=8"`
	Dims          int        `json:"dims,omitempty" validate:"omitempty,oneof=2 3"`
	HighWater     int        `json:"high_water,omitempty" validate:"omitempty,min=1,max=10000"`
	LowWater      int        `json:"low_water,omitempty" validate:"omitempty,min=1,max=10000"`
	FailurePolicy string     `json:"failure_policy,omitempty" validate:"omitempty,oneof=skip skip_and_retry fail_fast"`
	Seed          *int64     `json:"seed,omitempty"`
	Position      [3]float32 `json:"position"`
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	SessionID string           `json:"session_id"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Strategy  string           `json:"strategy"`
	Config    streaming.Config `json:"config"`
	Resident  int              `json:"resident"`
	StreamURL string           `json:"stream_url"`
}
