package api

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"testing"

	"github.com/worldstream/server/internal/config"
	"github.com/worldstream/server/internal/database"
	"github.com/worldstream/server/internal/layout"
	"github.com/worldstream/server/internal/testutil"
)

func postLayout(t *testing.T, helper *testutil.HTTPTestHelper, body interface{}) LayoutResponse {
	t.Helper()
	rr := helper.MakeRequest("POST", "/api/layouts", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp LayoutResponse
	decode(t, rr, &resp)
	return resp
}

func TestGenerateLayoutKinds(t *testing.T) {
	_, helper := newTestHelper(t)

	tests := []struct {
		name     string
		body     GenerateLayoutRequest
		minCells int
		maxCells int
	}{
		{
			name:     "rooms",
			body:     GenerateLayoutRequest{Kind: config.KindRooms, Seed: 11, Rooms: &layout.RoomOptions{MinRooms: 4, MaxRooms: 8, LightChance: 0.5}},
			minCells: 4,
			maxCells: 8,
		},
		{
			name:     "hallways",
			body:     GenerateLayoutRequest{Kind: config.KindHallways, Seed: 12, Hallways: &layout.HallwayOptions{MinHallways: 1, MaxHallways: 2, MinHallwayLength: 2, MaxHallwayLength: 3}},
			minCells: 1,
			maxCells: 7,
		},
		{
			name: "rooms on hallways",
			body: GenerateLayoutRequest{
				Kind:     config.KindRoomsOnHallways,
				Seed:     13,
				Hallways: &layout.HallwayOptions{MinHallways: 1, MaxHallways: 2, MinHallwayLength: 2, MaxHallwayLength: 3},
				Attach:   &layout.AttachOptions{MinRooms: 1, MaxRooms: 3, MinRoomSize: 1, MaxRoomSize: 2},
			},
			minCells: 1,
			maxCells: 13,
		},
		{
			name:     "building",
			body:     GenerateLayoutRequest{Kind: config.KindBuilding, Seed: 14, Floors: 3, Rooms: &layout.RoomOptions{MinRooms: 2, MaxRooms: 4}},
			minCells: 6,
			maxCells: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postLayout(t, helper, tt.body)
			if resp.ID <= 0 {
				t.Errorf("expected archived id, got %d", resp.ID)
			}
			if resp.Kind != tt.body.Kind || resp.Seed != tt.body.Seed {
				t.Errorf("unexpected kind/seed %s/%d", resp.Kind, resp.Seed)
			}
			if resp.Cells < tt.minCells || resp.Cells > tt.maxCells {
				t.Errorf("cells = %d, want within [%d, %d]", resp.Cells, tt.minCells, tt.maxCells)
			}
			if !resp.Connected {
				t.Error("expected a connected layout")
			}
			if !json.Valid(resp.Layout) {
				t.Errorf("layout payload is not JSON: %s", resp.Layout)
			}
		})
	}
}

func TestGenerateLayoutIsReproducible(t *testing.T) {
	_, helper := newTestHelper(t)
	body := GenerateLayoutRequest{Kind: config.KindRooms, Seed: 42, Rooms: &layout.RoomOptions{MinRooms: 5, MaxRooms: 10, LightChance: 0.3}}

	first := postLayout(t, helper, body)
	second := postLayout(t, helper, body)
	if string(first.Layout) != string(second.Layout) {
		t.Errorf("same seed produced different layouts:\n%s\n%s", first.Layout, second.Layout)
	}
	if first.ID == second.ID {
		t.Error("expected each generation to be archived separately")
	}
}

func TestGenerateLayoutRandomSeed(t *testing.T) {
	_, helper := newTestHelper(t)
	resp := postLayout(t, helper, GenerateLayoutRequest{Preset: "small"})
	if resp.Seed == 0 {
		t.Error("expected the chosen seed to be reported")
	}
	if resp.Preset != "small" || resp.Kind != config.KindRooms {
		t.Errorf("unexpected preset/kind %s/%s", resp.Preset, resp.Kind)
	}
}

func TestGenerateLayoutPresetOverride(t *testing.T) {
	_, helper := newTestHelper(t)
	resp := postLayout(t, helper, GenerateLayoutRequest{
		Preset: "small",
		Seed:   3,
		Rooms:  &layout.RoomOptions{MinRooms: 2, MaxRooms: 2},
	})
	if resp.Cells != 2 {
		t.Errorf("expected override to produce 2 rooms, got %d", resp.Cells)
	}
}

func TestGenerateLayoutRejects(t *testing.T) {
	_, helper := newTestHelper(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"no kind or preset", GenerateLayoutRequest{Seed: 1}},
		{"unknown preset", GenerateLayoutRequest{Preset: "castle"}},
		{"unknown kind", map[string]interface{}{"kind": "maze"}},
		{"missing options", GenerateLayoutRequest{Kind: config.KindHallways}},
		{"inverted range", GenerateLayoutRequest{Kind: config.KindRooms, Rooms: &layout.RoomOptions{MinRooms: 5, MaxRooms: 2}}},
		{"too many cells", GenerateLayoutRequest{Kind: config.KindRooms, Rooms: &layout.RoomOptions{MinRooms: 1, MaxRooms: 1000}}},
		{"too many floors", GenerateLayoutRequest{Kind: config.KindBuilding, Floors: 100, Rooms: &layout.RoomOptions{MinRooms: 1, MaxRooms: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := helper.MakeRequest("POST", "/api/layouts", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}

	rr := helper.MakeRequestWithHeaders("POST", "/api/layouts", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", rr.Code)
	}
}

func TestGenerateLayoutCapsHugeOptions(t *testing.T) {
	_, helper := newTestHelper(t)

	huge := 1 << 32
	rr := helper.MakeRequest("POST", "/api/layouts", GenerateLayoutRequest{
		Kind:     config.KindRoomsOnHallways,
		Hallways: &layout.HallwayOptions{MinHallways: 1, MaxHallways: 1, MinHallwayLength: 1, MaxHallwayLength: 1},
		Attach:   &layout.AttachOptions{MinRooms: 1, MaxRooms: huge, MinRoomSize: 1, MaxRoomSize: huge},
	})
	testutil.AssertError(t, rr, http.StatusBadRequest, "ValidationError")

	// In range per field, far beyond the cell cap together.
	rr = helper.MakeRequest("POST", "/api/layouts", GenerateLayoutRequest{
		Kind:     config.KindRoomsOnHallways,
		Hallways: &layout.HallwayOptions{MinHallways: 1, MaxHallways: layout.MaxCount, MinHallwayLength: 1, MaxHallwayLength: layout.MaxCount},
		Attach:   &layout.AttachOptions{MinRooms: 1, MaxRooms: layout.MaxCount, MinRoomSize: 1, MaxRoomSize: layout.MaxCount},
	})
	testutil.AssertError(t, rr, http.StatusBadRequest, "LayoutTooLarge")
}

func TestGetAndListLayouts(t *testing.T) {
	_, helper := newTestHelper(t)
	rooms := postLayout(t, helper, GenerateLayoutRequest{Kind: config.KindRooms, Seed: 5, Rooms: &layout.RoomOptions{MinRooms: 3, MaxRooms: 3}})
	postLayout(t, helper, GenerateLayoutRequest{Kind: config.KindHallways, Seed: 6, Hallways: &layout.HallwayOptions{MinHallways: 1, MaxHallways: 1, MinHallwayLength: 1, MaxHallwayLength: 2}})

	rr := helper.MakeRequest("GET", fmt.Sprintf("/api/layouts/%d", rooms.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got LayoutResponse
	decode(t, rr, &got)
	var l layout.Layout
	if err := json.Unmarshal(got.Layout, &l); err != nil {
		t.Fatalf("archived layout does not decode: %v", err)
	}
	if l.Len() != 3 || got.Seed != 5 {
		t.Errorf("unexpected archived layout: %d rooms, seed %d", l.Len(), got.Seed)
	}

	rr = helper.MakeRequest("GET", "/api/layouts?kind=rooms", nil)
	var list struct {
		Layouts []database.LayoutSummary `json:"layouts"`
	}
	decode(t, rr, &list)
	if len(list.Layouts) != 1 || list.Layouts[0].ID != rooms.ID {
		t.Errorf("unexpected filtered list %+v", list.Layouts)
	}

	rr = helper.MakeRequest("GET", "/api/layouts?limit=1", nil)
	decode(t, rr, &list)
	if len(list.Layouts) != 1 {
		t.Errorf("expected limit to apply, got %d", len(list.Layouts))
	}

	for path, status := range map[string]int{
		"/api/layouts/999":       http.StatusNotFound,
		"/api/layouts/abc":       http.StatusBadRequest,
		"/api/layouts?limit=-1":  http.StatusBadRequest,
		"/api/layouts/1/extra":   http.StatusNotFound,
		"/api/layouts?limit=two": http.StatusBadRequest,
	} {
		if rr := helper.MakeRequest("GET", path, nil); rr.Code != status {
			t.Errorf("GET %s: expected %d, got %d", path, status, rr.Code)
		}
	}
}

func TestEstimateCells(t *testing.T) {
	hall := &layout.HallwayOptions{MaxHallways: 2, MaxHallwayLength: 3}
	tests := []struct {
		name   string
		preset config.LayoutPreset
		want   int
	}{
		{"rooms", config.LayoutPreset{Kind: config.KindRooms, Rooms: &layout.RoomOptions{MaxRooms: 9}}, 9},
		{"hallways", config.LayoutPreset{Kind: config.KindHallways, Hallways: hall}, 7},
		{"rooms on hallways", config.LayoutPreset{Kind: config.KindRoomsOnHallways, Hallways: hall, Attach: &layout.AttachOptions{MaxRooms: 3, MaxRoomSize: 2}}, 13},
		{"building", config.LayoutPreset{Kind: config.KindBuilding, Floors: 4, Rooms: &layout.RoomOptions{MaxRooms: 5}}, 20},
		{"attach product saturates", config.LayoutPreset{Kind: config.KindRoomsOnHallways, Hallways: hall, Attach: &layout.AttachOptions{MaxRooms: 1 << 32, MaxRoomSize: 1 << 32}}, math.MaxInt},
		{"hallway product saturates", config.LayoutPreset{Kind: config.KindHallways, Hallways: &layout.HallwayOptions{MaxHallways: 1 << 62, MaxHallwayLength: 4}}, math.MaxInt},
		{"sum saturates", config.LayoutPreset{Kind: config.KindRoomsOnHallways, Hallways: &layout.HallwayOptions{MaxHallways: 1, MaxHallwayLength: math.MaxInt - 1}, Attach: &layout.AttachOptions{MaxRooms: 2, MaxRoomSize: 1}}, math.MaxInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimateCells(tt.preset); got != tt.want {
				t.Errorf("estimateCells() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunPresetMarksPartialLayouts(t *testing.T) {
	// A single attempt cannot place eight rooms.
	p := config.LayoutPreset{Kind: config.KindRooms, Rooms: &layout.RoomOptions{MinRooms: 8, MaxRooms: 8, MaxAttempts: 1}}
	got, err := runPreset(p, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("runPreset failed: %v", err)
	}
	if !got.partial || got.cells >= 8 {
		t.Errorf("expected a partial layout, got %+v", got)
	}
}
