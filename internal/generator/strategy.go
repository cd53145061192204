package generator

import (
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldstream/server/internal/chunk"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/resources"
	"github.com/worldstream/server/internal/scene"
)

// Options are shared by every Generate call of one streaming session.
type Options struct {
	CellSize float32
	// Seed makes generation reproducible per coordinate. Zero means each call
	// is freshly randomized, so a re-entered cell looks different.
	Seed int64
	// Rand, when set and Seed is zero, is drawn from instead of the global
	// source. It is only touched from the streaming loop.
	Rand *rand.Rand
}

// Strategy synthesizes content for one grid cell. Resources identical across
// chunks must come from cache; the returned content owns everything else.
type Strategy interface {
	Name() string
	Generate(loc grid.Coord, opts Options, cache *resources.Cache) (chunk.Content, error)
}

// Func adapts a plain function to Strategy.
type Func struct {
	Label string
	Fn    func(loc grid.Coord, opts Options, cache *resources.Cache) (chunk.Content, error)
}

// Name returns the label.
func (f Func) Name() string { return f.Label }

// Generate calls Fn.
func (f Func) Generate(loc grid.Coord, opts Options, cache *resources.Cache) (chunk.Content, error) {
	return f.Fn(loc, opts, cache)
}

// New returns a built-in strategy by name.
func New(name string) (Strategy, error) {
	switch name {
	case "floor", "":
		return Floor{}, nil
	case "city":
		return City{}, nil
	case "rooms":
		return Rooms{}, nil
	default:
		return nil, fmt.Errorf("unknown generator strategy %q", name)
	}
}

// Names lists the built-in strategies.
func Names() []string {
	return []string{"floor", "city", "rooms"}
}

// rngFor returns the random source for one Generate call.
func rngFor(loc grid.Coord, opts Options) *rand.Rand {
	if opts.Seed == 0 {
		if opts.Rand != nil {
			return rand.New(rand.NewSource(opts.Rand.Int63()))
		}
		return rand.New(rand.NewSource(rand.Int63()))
	}
	return rand.New(rand.NewSource(int64(hash3(opts.Seed, loc.X, loc.Y, loc.Z))))
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9))
}

// material fetches a shared material from the cache.
func material(cache *resources.Cache, key string, color mgl32.Vec3, roughness float32) (*scene.Material, error) {
	res, err := cache.GetOrCreate("material:"+key, func() (resources.Resource, error) {
		return &scene.Material{Name: key, Color: color, Roughness: roughness}, nil
	})
	if err != nil {
		return nil, err
	}
	m, ok := res.(*scene.Material)
	if !ok {
		return nil, fmt.Errorf("cache entry %q is %T, not a material", key, res)
	}
	return m, nil
}

// geometry fetches a shared geometry from the cache.
func geometry(cache *resources.Cache, key string, build func() *scene.Geometry) (*scene.Geometry, error) {
	res, err := cache.GetOrCreate("geometry:"+key, func() (resources.Resource, error) {
		return build(), nil
	})
	if err != nil {
		return nil, err
	}
	g, ok := res.(*scene.Geometry)
	if !ok {
		return nil, fmt.Errorf("cache entry %q is %T, not a geometry", key, res)
	}
	return g, nil
}

// origin returns the world-space corner of a cell.
func origin(loc grid.Coord, cellSize float32) mgl32.Vec3 {
	return mgl32.Vec3{float32(loc.X) * cellSize, float32(loc.Y) * cellSize, float32(loc.Z) * cellSize}
}
