package generator

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldstream/server/internal/chunk"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/resources"
	"github.com/worldstream/server/internal/scene"
)

var facadePalette = []mgl32.Vec3{
	{0.62, 0.64, 0.68},
	{0.55, 0.45, 0.38},
	{0.78, 0.74, 0.66},
}

// City fills a cell with a block of buildings. Each building's box is built
// for its chunk; the street and facade materials are shared.
type City struct{}

// Name implements Strategy.
func (City) Name() string { return "city" }

// Generate implements Strategy.
func (City) Generate(loc grid.Coord, opts Options, cache *resources.Cache) (chunk.Content, error) {
	size := opts.CellSize
	rng := rngFor(loc, opts)

	street, err := material(cache, "street", mgl32.Vec3{0.2, 0.2, 0.22}, 0.95)
	if err != nil {
		return nil, err
	}
	plane, err := geometry(cache, fmt.Sprintf("floor_plane:%g", size), func() *scene.Geometry {
		return scene.Plane("floor_plane", size, size)
	})
	if err != nil {
		return nil, err
	}

	base := origin(loc, size)
	content := &scene.Content{}
	content.AddMesh(plane, street, mgl32.Translate3D(base.X()+size/2, base.Y(), base.Z()+size/2))

	// A 2x2 lot grid with a street margin around each lot.
	lot := size / 2
	margin := lot * 0.15
	for lx := 0; lx < 2; lx++ {
		for lz := 0; lz < 2; lz++ {
			if rng.Float32() < 0.2 {
				continue
			}
			idx := rng.Intn(len(facadePalette))
			facade, err := material(cache, fmt.Sprintf("facade_%d", idx), facadePalette[idx], 0.7)
			if err != nil {
				return nil, err
			}

			w := lot - 2*margin
			h := size * (0.2 + rng.Float32()*1.8)
			building := scene.Box("building", w, h, w)
			x := base.X() + float32(lx)*lot + lot/2
			z := base.Z() + float32(lz)*lot + lot/2
			content.AddOwnedMesh(building, facade, mgl32.Translate3D(x, base.Y()+h/2, z))
		}
	}

	if rng.Float32() < 0.5 {
		content.AddLight(&scene.Light{
			Position:  mgl32.Vec3{base.X() + size/2, base.Y() + size*0.1, base.Z() + size/2},
			Color:     mgl32.Vec3{1, 0.8, 0.5},
			Intensity: 0.8,
		})
	}

	return content, nil
}
