package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Material is a shared surface description. Materials live in a resource
// cache and are never disposed by the chunks that reference them.
type Material struct {
	Name      string     `json:"name"`
	Color     mgl32.Vec3 `json:"color"`
	Roughness float32    `json:"roughness"`
	Emissive  bool       `json:"emissive,omitempty"`

	disposed bool
}

// Dispose marks the material released.
func (m *Material) Dispose() { m.disposed = true }

// Disposed reports whether Dispose was called.
func (m *Material) Disposed() bool { return m.disposed }

// Geometry is an indexed triangle mesh.
type Geometry struct {
	Name     string
	Vertices []mgl32.Vec3
	Indices  []uint32

	disposed bool
}

// Dispose drops the vertex buffers.
func (g *Geometry) Dispose() {
	g.Vertices = nil
	g.Indices = nil
	g.disposed = true
}

// Disposed reports whether Dispose was called.
func (g *Geometry) Disposed() bool { return g.disposed }

// Light is a point light owned by a single chunk.
type Light struct {
	Position  mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32

	disposed bool
}

// Dispose marks the light released.
func (l *Light) Dispose() { l.disposed = true }

// Disposed reports whether Dispose was called.
func (l *Light) Disposed() bool { return l.disposed }

// Mesh places a geometry with a material in world space.
type Mesh struct {
	Geometry  *Geometry
	Material  *Material
	Transform mgl32.Mat4
}

// Content is the renderable payload of one chunk.
//
// Geometries listed in Owned and every light belong to the chunk and are
// released by Dispose. Everything else a mesh points at is borrowed.
type Content struct {
	Meshes []Mesh
	Lights []*Light
	Owned  []*Geometry

	disposed bool
}

// AddMesh appends a mesh that borrows both geometry and material.
func (c *Content) AddMesh(g *Geometry, m *Material, transform mgl32.Mat4) {
	c.Meshes = append(c.Meshes, Mesh{Geometry: g, Material: m, Transform: transform})
}

// AddOwnedMesh appends a mesh whose geometry is released with the content.
func (c *Content) AddOwnedMesh(g *Geometry, m *Material, transform mgl32.Mat4) {
	c.Owned = append(c.Owned, g)
	c.AddMesh(g, m, transform)
}

// AddLight appends a chunk-owned light.
func (c *Content) AddLight(l *Light) {
	c.Lights = append(c.Lights, l)
}

// Dispose releases owned geometry and lights. Idempotent.
func (c *Content) Dispose() {
	if c.disposed {
		return
	}
	for _, g := range c.Owned {
		g.Dispose()
	}
	for _, l := range c.Lights {
		l.Dispose()
	}
	c.disposed = true
}

// Disposed reports whether Dispose was called.
func (c *Content) Disposed() bool { return c.disposed }

// TriangleCount sums the triangles of every mesh.
func (c *Content) TriangleCount() int {
	total := 0
	for _, m := range c.Meshes {
		if m.Geometry != nil {
			total += len(m.Geometry.Indices) / 3
		}
	}
	return total
}
