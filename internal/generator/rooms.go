package generator

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldstream/server/internal/chunk"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/layout"
	"github.com/worldstream/server/internal/resources"
	"github.com/worldstream/server/internal/scene"
)

// DefaultRoomOptions size the floorplan generated inside each cell.
var DefaultRoomOptions = layout.RoomOptions{MinRooms: 4, MaxRooms: 12, LightChance: 0.3}

// Rooms grows a floorplan inside every cell and turns its walls into quads.
type Rooms struct {
	Options layout.RoomOptions
}

// Name implements Strategy.
func (Rooms) Name() string { return "rooms" }

// Generate implements Strategy.
func (r Rooms) Generate(loc grid.Coord, opts Options, cache *resources.Cache) (chunk.Content, error) {
	roomOpts := r.Options
	if roomOpts.MaxRooms == 0 {
		roomOpts = DefaultRoomOptions
	}
	rng := rngFor(loc, opts)

	plan, err := layout.GenerateRooms(roomOpts, rng)
	if err != nil && !errors.Is(err, layout.ErrRetriesExhausted) {
		return nil, fmt.Errorf("failed to lay out rooms at %v: %w", loc, err)
	}

	floorMat, err := material(cache, "room_floor", mgl32.Vec3{0.6, 0.5, 0.4}, 0.8)
	if err != nil {
		return nil, err
	}
	wallMat, err := material(cache, "wall", mgl32.Vec3{0.9, 0.9, 0.88}, 0.5)
	if err != nil {
		return nil, err
	}
	unitPlane, err := geometry(cache, "unit_plane", func() *scene.Geometry {
		return scene.Plane("unit_plane", 1, 1)
	})
	if err != nil {
		return nil, err
	}
	unitQuad, err := geometry(cache, "unit_quad", func() *scene.Geometry {
		return scene.Quad("unit_quad", 1, 1)
	})
	if err != nil {
		return nil, err
	}

	lo, hi := plan.Bounds()
	span := max(hi.X-lo.X, hi.Y-lo.Y) + 1
	room := opts.CellSize / float32(span)
	wallHeight := room * 0.75
	base := origin(loc, opts.CellSize)

	content := &scene.Content{}
	for _, rm := range plan.Rooms {
		cx := base.X() + (float32(rm.Position.X-lo.X)+0.5)*room
		cz := base.Z() + (float32(rm.Position.Y-lo.Y)+0.5)*room
		content.AddMesh(unitPlane, floorMat, mgl32.Translate3D(cx, base.Y(), cz).Mul4(mgl32.Scale3D(room, 1, room)))

		for _, d := range rm.Walls.List() {
			content.AddMesh(unitQuad, wallMat, wallTransform(cx, base.Y(), cz, room, wallHeight, d))
		}

		if rm.Light {
			content.AddLight(&scene.Light{
				Position:  mgl32.Vec3{cx, base.Y() + wallHeight*0.9, cz},
				Color:     mgl32.Vec3{1, 0.9, 0.75},
				Intensity: 0.6,
			})
		}
	}
	return content, nil
}

// wallTransform places a unit quad on side d of a room centred at (cx, cz).
func wallTransform(cx, y, cz, room, height float32, d layout.Direction) mgl32.Mat4 {
	off := d.Offset()
	half := room / 2
	x := cx + float32(off.X)*half
	z := cz + float32(off.Y)*half
	// Quads face +Z; rotate so each wall faces into its room.
	angle := float32(math.Pi / 2 * float64(d))
	return mgl32.Translate3D(x, y, z).
		Mul4(mgl32.HomogRotate3DY(angle)).
		Mul4(mgl32.Scale3D(room, height, 1))
}
