package api

import (
	"encoding/json"
	"time"

	"github.com/worldstream/server/internal/layout"
)

// GenerateLayoutRequest is the body of POST /api/layouts. Either Preset or
// Kind with its options must be given; explicit options override the preset.
type GenerateLayoutRequest struct {
	Preset   string                 `json:"preset,omitempty" validate:"omitempty,max=64"`
	Kind     string                 `json:"kind,omitempty" validate:"omitempty,oneof=rooms hallways rooms_on_hallways building"`
	Seed     int64                  `json:"seed,omitempty"`
	Rooms    *layout.RoomOptions    `json:"rooms,omitempty"`
	Hallways *layout.HallwayOptions `json:"hallways,omitempty"`
	Attach   *layout.AttachOptions  `json:"attach,omitempty"`
	Floors   int                    `json:"floors,omitempty" validate:"omitempty,min=1,max=64"`
}

// LayoutResponse is a generated or archived layout.
type LayoutResponse struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	Preset    string          `json:"preset,omitempty"`
	Seed      int64           `json:"seed"`
	Cells     int             `json:"cells"`
	Connected bool            `json:"connected"`
	// Partial is set when generation ran out of retries and returned fewer
	// cells than requested.
	Partial   bool            `json:"partial"`
	Layout    json.RawMessage `json:"layout"`
	CreatedAt time.Time       `json:"created_at"`
}
