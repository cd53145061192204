package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/worldstream/server/internal/auth"
	"github.com/worldstream/server/internal/config"
	"github.com/worldstream/server/internal/database"
	"github.com/worldstream/server/internal/layout"
)

// LayoutHandlers generates floorplans and serves the layout archive.
type LayoutHandlers struct {
	svc *Services
}

// NewLayoutHandlers creates a new LayoutHandlers instance.
func NewLayoutHandlers(svc *Services) *LayoutHandlers {
	return &LayoutHandlers{svc: svc}
}

// generated is the outcome of one layout run.
type generated struct {
	payload   interface{}
	cells     int
	connected bool
	partial   bool
}

// GenerateLayout generates a layout, archives it and returns it.
// POST /api/layouts
func (h *LayoutHandlers) GenerateLayout(w http.ResponseWriter, r *http.Request) {
	var req GenerateLayoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		auth.SendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.svc.Validate.Struct(req); err != nil {
		auth.SendValidationError(w, err)
		return
	}

	preset, err := h.resolvePreset(req)
	if err != nil {
		auth.SendError(w, http.StatusBadRequest, "InvalidLayoutRequest", err.Error())
		return
	}
	if err := preset.Validate(); err != nil {
		auth.SendError(w, http.StatusBadRequest, "InvalidLayoutOptions", err.Error())
		return
	}
	if n := estimateCells(preset); n > h.svc.Config.Layout.MaxCells {
		auth.SendError(w, http.StatusBadRequest, "LayoutTooLarge",
			fmt.Sprintf("layout may reach %d cells, limit is %d", n, h.svc.Config.Layout.MaxCells))
		return
	}

	seed := req.Seed
	for seed == 0 {
		seed = rand.Int63()
	}
	start := time.Now()
	result, err := runPreset(preset, rand.New(rand.NewSource(seed)))
	if err != nil {
		auth.SendError(w, http.StatusUnprocessableEntity, "GenerationFailed", err.Error())
		return
	}

	payload, err := json.Marshal(result.payload)
	if err != nil {
		log.Printf("[Layout] failed to encode layout: %v", err)
		auth.SendError(w, http.StatusInternalServerError, "InternalError", "Failed to encode layout")
		return
	}
	options, err := json.Marshal(preset)
	if err != nil {
		log.Printf("[Layout] failed to encode options: %v", err)
		auth.SendError(w, http.StatusInternalServerError, "InternalError", "Failed to encode options")
		return
	}

	rec := &database.LayoutRecord{
		Kind:    preset.Kind,
		Seed:    seed,
		Cells:   result.cells,
		Options: options,
		Layout:  payload,
	}
	if _, err := h.svc.Layouts.Save(r.Context(), rec); err != nil {
		log.Printf("[Layout] failed to archive layout: %v", err)
		auth.SendError(w, http.StatusInternalServerError, "InternalError", "Failed to archive layout")
		return
	}
	log.Printf("[Layout] generated %s #%d: seed=%d cells=%d partial=%v in %s",
		rec.Kind, rec.ID, seed, result.cells, result.partial, time.Since(start))

	auth.SendJSON(w, http.StatusCreated, LayoutResponse{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Preset:    req.Preset,
		Seed:      seed,
		Cells:     result.cells,
		Connected: result.connected,
		Partial:   result.partial,
		Layout:    payload,
		CreatedAt: rec.CreatedAt,
	})
}

// GetLayout returns an archived layout.
// GET /api/layouts/{id}
func (h *LayoutHandlers) GetLayout(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		auth.SendError(w, http.StatusBadRequest, "InvalidLayoutID", "Layout id must be a positive integer")
		return
	}
	rec, err := h.svc.Layouts.Get(r.Context(), id)
	if errors.Is(err, database.ErrLayoutNotFound) {
		auth.SendError(w, http.StatusNotFound, "LayoutNotFound", "Layout not found")
		return
	}
	if err != nil {
		log.Printf("[Layout] failed to load layout %d: %v", id, err)
		auth.SendError(w, http.StatusInternalServerError, "InternalError", "Failed to load layout")
		return
	}
	auth.SendJSON(w, http.StatusOK, LayoutResponse{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Seed:      rec.Seed,
		Cells:     rec.Cells,
		Connected: true,
		Layout:    rec.Layout,
		CreatedAt: rec.CreatedAt,
	})
}

// ListLayouts lists archived layouts, newest first.
// GET /api/layouts?kind=&limit=
func (h *LayoutHandlers) ListLayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			auth.SendError(w, http.StatusBadRequest, "InvalidLimit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	layouts, err := h.svc.Layouts.List(r.Context(), q.Get("kind"), limit)
	if err != nil {
		log.Printf("[Layout] failed to list layouts: %v", err)
		auth.SendError(w, http.StatusInternalServerError, "InternalError", "Failed to list layouts")
		return
	}
	auth.SendJSON(w, http.StatusOK, map[string]interface{}{"layouts": layouts})
}

// DeleteLayout removes an archived layout.
// DELETE /api/admin/layouts/{id}
func (h *LayoutHandlers) DeleteLayout(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		auth.SendError(w, http.StatusBadRequest, "InvalidLayoutID", "Layout id must be a positive integer")
		return
	}
	err = h.svc.Layouts.Delete(r.Context(), id)
	if errors.Is(err, database.ErrLayoutNotFound) {
		auth.SendError(w, http.StatusNotFound, "LayoutNotFound", "Layout not found")
		return
	}
	if err != nil {
		log.Printf("[Layout] failed to delete layout %d: %v", id, err)
		auth.SendError(w, http.StatusInternalServerError, "InternalError", "Failed to delete layout")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolvePreset starts from the named preset, if any, and applies the
// request's explicit fields on top.
func (h *LayoutHandlers) resolvePreset(req GenerateLayoutRequest) (config.LayoutPreset, error) {
	var p config.LayoutPreset
	if req.Preset != "" {
		named, ok := h.svc.Config.Layout.Presets[req.Preset]
		if !ok {
			return p, fmt.Errorf("unknown preset %q", req.Preset)
		}
		p = named
	} else if req.Kind == "" {
		return p, errors.New("kind or preset is required")
	}
	if req.Kind != "" {
		p.Kind = req.Kind
	}
	if req.Rooms != nil {
		p.Rooms = req.Rooms
	}
	if req.Hallways != nil {
		p.Hallways = req.Hallways
	}
	if req.Attach != nil {
		p.Attach = req.Attach
	}
	if req.Floors != 0 {
		p.Floors = req.Floors
	}
	return p, nil
}

// estimateCells bounds the number of cells a preset can produce. The bound
// saturates at math.MaxInt instead of wrapping.
func estimateCells(p config.LayoutPreset) int {
	n := 0
	if p.Hallways != nil && (p.Kind == config.KindHallways || p.Kind == config.KindRoomsOnHallways) {
		n = addCells(n, addCells(1, mulCells(p.Hallways.MaxHallways, p.Hallways.MaxHallwayLength)))
	}
	if p.Attach != nil && p.Kind == config.KindRoomsOnHallways {
		n = addCells(n, mulCells(p.Attach.MaxRooms, p.Attach.MaxRoomSize))
	}
	if p.Rooms != nil {
		switch p.Kind {
		case config.KindRooms:
			n = addCells(n, p.Rooms.MaxRooms)
		case config.KindBuilding:
			n = addCells(n, mulCells(max(p.Floors, 1), p.Rooms.MaxRooms))
		}
	}
	return n
}

func mulCells(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}

func addCells(a, b int) int {
	if b > math.MaxInt-a {
		return math.MaxInt
	}
	return a + b
}

// runPreset generates the layout a validated preset describes. Running out
// of retries is not an error: the partial layout is returned and flagged.
func runPreset(p config.LayoutPreset, rng *rand.Rand) (generated, error) {
	partial := func(err error) (bool, error) {
		if errors.Is(err, layout.ErrRetriesExhausted) {
			return true, nil
		}
		return false, err
	}

	switch p.Kind {
	case config.KindRooms:
		l, err := layout.GenerateRooms(*p.Rooms, rng)
		exhausted, err := partial(err)
		if err != nil {
			return generated{}, err
		}
		return generated{payload: l, cells: l.Len(), connected: l.Connected(), partial: exhausted}, nil

	case config.KindHallways, config.KindRoomsOnHallways:
		l, err := layout.GenerateHallways(*p.Hallways, rng)
		exhausted, err := partial(err)
		if err != nil {
			return generated{}, err
		}
		if p.Kind == config.KindRoomsOnHallways {
			_, err := layout.GenerateRoomsOnHallways(l, *p.Attach, rng)
			short, err := partial(err)
			if err != nil {
				return generated{}, err
			}
			exhausted = exhausted || short
		}
		return generated{payload: l, cells: l.Len(), connected: l.Connected(), partial: exhausted}, nil

	case config.KindBuilding:
		b, err := layout.GenerateBuilding(layout.BuildingOptions{Floors: p.Floors, Rooms: *p.Rooms}, rng)
		exhausted, err := partial(err)
		if err != nil {
			return generated{}, err
		}
		connected := true
		for _, f := range b.Floors {
			connected = connected && f.Connected()
		}
		return generated{payload: b, cells: b.RoomCount(), connected: connected, partial: exhausted}, nil

	default:
		return generated{}, fmt.Errorf("unknown layout kind %q", p.Kind)
	}
}
