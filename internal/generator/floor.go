package generator

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldstream/server/internal/chunk"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/resources"
	"github.com/worldstream/server/internal/scene"
)

const (
	maxPillars      = 4
	maxFloorLights  = 2
	pillarWidth     = 0.05 // fraction of the cell
	pillarMaxHeight = 0.6
)

// Floor tiles the ground with a shared floor patch, scatters pillars and
// occasionally drops a light. It mirrors the physics playground chunks.
type Floor struct{}

// Name implements Strategy.
func (Floor) Name() string { return "floor" }

// Generate implements Strategy.
func (Floor) Generate(loc grid.Coord, opts Options, cache *resources.Cache) (chunk.Content, error) {
	size := opts.CellSize
	rng := rngFor(loc, opts)

	floorMat, err := material(cache, "floor", mgl32.Vec3{0.45, 0.45, 0.42}, 0.9)
	if err != nil {
		return nil, err
	}
	pillarMat, err := material(cache, "pillar", mgl32.Vec3{0.8, 0.78, 0.7}, 0.6)
	if err != nil {
		return nil, err
	}
	plane, err := geometry(cache, fmt.Sprintf("floor_plane:%g", size), func() *scene.Geometry {
		return scene.Plane("floor_plane", size, size)
	})
	if err != nil {
		return nil, err
	}
	box, err := geometry(cache, "unit_box", func() *scene.Geometry {
		return scene.Box("unit_box", 1, 1, 1)
	})
	if err != nil {
		return nil, err
	}

	base := origin(loc, size)
	center := base.Add(mgl32.Vec3{size / 2, 0, size / 2})

	content := &scene.Content{}
	content.AddMesh(plane, floorMat, mgl32.Translate3D(center.X(), center.Y(), center.Z()))

	for i := rng.Intn(maxPillars + 1); i > 0; i-- {
		w := size * pillarWidth
		h := size * (0.1 + rng.Float32()*pillarMaxHeight)
		x := base.X() + rng.Float32()*size
		z := base.Z() + rng.Float32()*size
		transform := mgl32.Translate3D(x, base.Y()+h/2, z).Mul4(mgl32.Scale3D(w, h, w))
		content.AddMesh(box, pillarMat, transform)
	}

	for i := rng.Intn(maxFloorLights + 1); i > 0; i-- {
		content.AddLight(&scene.Light{
			Position:  mgl32.Vec3{base.X() + rng.Float32()*size, base.Y() + size*0.5, base.Z() + rng.Float32()*size},
			Color:     mgl32.Vec3{1, 0.95, 0.85},
			Intensity: 0.5 + rng.Float32(),
		})
	}

	return content, nil
}
