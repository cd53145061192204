package generator

import (
	"errors"
	"testing"

	"github.com/worldstream/server/internal/chunk"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/resources"
	"github.com/worldstream/server/internal/scene"
)

func mustContent(t *testing.T, c chunk.Content) *scene.Content {
	t.Helper()
	sc, ok := c.(*scene.Content)
	if !ok {
		t.Fatalf("expected *scene.Content, got %T", c)
	}
	return sc
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("expected name %q, got %q", name, s.Name())
		}
	}
	if s, err := New(""); err != nil || s.Name() != "floor" {
		t.Errorf("expected empty name to default to floor, got %v, %v", s, err)
	}
	if _, err := New("voxels"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestStrategiesShareCachedResources(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, _ := New(name)
			cache := resources.NewCache()
			opts := Options{CellSize: 10, Seed: 7}

			a := mustContent(t, mustGenerate(t, s, grid.Coord{X: 0, Z: 0}, opts, cache))
			b := mustContent(t, mustGenerate(t, s, grid.Coord{X: 1, Z: 0}, opts, cache))

			if _, hits := cache.Stats(); hits == 0 {
				t.Error("expected the second chunk to hit the cache")
			}
			if len(a.Meshes) == 0 || len(b.Meshes) == 0 {
				t.Fatal("expected meshes in both chunks")
			}
			if a.Meshes[0].Material != b.Meshes[0].Material {
				t.Error("expected ground material to be shared between chunks")
			}
		})
	}
}

func TestDisposeLeavesSharedResources(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, _ := New(name)
			cache := resources.NewCache()
			c := mustContent(t, mustGenerate(t, s, grid.Coord{X: 2, Z: -3}, Options{CellSize: 8, Seed: 3}, cache))

			c.Dispose()
			if !c.Disposed() {
				t.Fatal("expected content to be disposed")
			}
			for _, m := range c.Meshes {
				if m.Material.Disposed() {
					t.Fatalf("chunk dispose released shared material %q", m.Material.Name)
				}
			}
			for _, key := range cache.Keys() {
				res, _ := cache.Get(key)
				if g, ok := res.(*scene.Geometry); ok && g.Disposed() {
					t.Fatalf("chunk dispose released shared geometry %q", key)
				}
			}
			for _, g := range c.Owned {
				if !g.Disposed() {
					t.Errorf("owned geometry %q was not released", g.Name)
				}
			}
			for _, l := range c.Lights {
				if !l.Disposed() {
					t.Error("owned light was not released")
				}
			}
		})
	}
}

func TestSeededGenerationIsDeterministic(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, _ := New(name)
			opts := Options{CellSize: 12, Seed: 42}
			loc := grid.Coord{X: -4, Z: 9}

			a := mustContent(t, mustGenerate(t, s, loc, opts, resources.NewCache()))
			b := mustContent(t, mustGenerate(t, s, loc, opts, resources.NewCache()))

			if len(a.Meshes) != len(b.Meshes) || len(a.Lights) != len(b.Lights) {
				t.Fatalf("expected identical chunks, got %d/%d meshes and %d/%d lights",
					len(a.Meshes), len(b.Meshes), len(a.Lights), len(b.Lights))
			}
			for i := range a.Meshes {
				if a.Meshes[i].Transform != b.Meshes[i].Transform {
					t.Fatalf("mesh %d transform differs", i)
				}
			}
		})
	}
}

func TestFloorStaysInsideCell(t *testing.T) {
	cache := resources.NewCache()
	opts := Options{CellSize: 5, Seed: 1}
	for x := -3; x <= 3; x++ {
		loc := grid.Coord{X: x, Z: x * 2}
		c := mustContent(t, mustGenerate(t, Floor{}, loc, opts, cache))
		lo := origin(loc, opts.CellSize)
		for _, l := range c.Lights {
			if l.Position.X() < lo.X() || l.Position.X() > lo.X()+opts.CellSize ||
				l.Position.Z() < lo.Z() || l.Position.Z() > lo.Z()+opts.CellSize {
				t.Fatalf("light %v outside cell %v", l.Position, loc)
			}
		}
	}
}

func TestCityOwnsBuildings(t *testing.T) {
	cache := resources.NewCache()
	found := false
	for x := 0; x < 10 && !found; x++ {
		c := mustContent(t, mustGenerate(t, City{}, grid.Coord{X: x}, Options{CellSize: 20, Seed: 5}, cache))
		found = len(c.Owned) > 0
	}
	if !found {
		t.Fatal("expected at least one chunk with owned building geometry")
	}
	if _, ok := cache.Get("geometry:building"); ok {
		t.Error("buildings must not be cached")
	}
}

func TestRoomsWallsMatchLayout(t *testing.T) {
	cache := resources.NewCache()
	c := mustContent(t, mustGenerate(t, Rooms{}, grid.Coord{}, Options{CellSize: 16, Seed: 9}, cache))
	if len(c.Owned) != 0 {
		t.Errorf("rooms should only borrow geometry, owned %d", len(c.Owned))
	}
	walls := 0
	for _, m := range c.Meshes {
		if m.Geometry.Name == "unit_quad" {
			walls++
		}
	}
	if walls < 4 {
		t.Errorf("expected at least 4 wall quads, got %d", walls)
	}
}

func TestFuncStrategy(t *testing.T) {
	boom := errors.New("boom")
	f := Func{Label: "broken", Fn: func(grid.Coord, Options, *resources.Cache) (chunk.Content, error) {
		return nil, boom
	}}
	if f.Name() != "broken" {
		t.Errorf("unexpected name %q", f.Name())
	}
	if _, err := f.Generate(grid.Coord{}, Options{}, nil); !errors.Is(err, boom) {
		t.Errorf("expected wrapped function error, got %v", err)
	}
}

func mustGenerate(t *testing.T, s Strategy, loc grid.Coord, opts Options, cache *resources.Cache) chunk.Content {
	t.Helper()
	c, err := s.Generate(loc, opts, cache)
	if err != nil {
		t.Fatalf("%s: generate %v failed: %v", s.Name(), loc, err)
	}
	return c
}
