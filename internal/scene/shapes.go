package scene

import "github.com/go-gl/mathgl/mgl32"

// Box builds an axis-aligned box centred on the origin.
func Box(name string, w, h, d float32) *Geometry {
	x, y, z := w/2, h/2, d/2
	corners := []mgl32.Vec3{
		{-x, -y, -z}, {x, -y, -z}, {x, y, -z}, {-x, y, -z},
		{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z},
	}
	faces := []uint32{
		0, 2, 1, 0, 3, 2, // back
		4, 5, 6, 4, 6, 7, // front
		0, 1, 5, 0, 5, 4, // bottom
		3, 6, 2, 3, 7, 6, // top
		0, 4, 7, 0, 7, 3, // left
		1, 2, 6, 1, 6, 5, // right
	}
	return &Geometry{Name: name, Vertices: corners, Indices: faces}
}

// Plane builds a horizontal quad centred on the origin, facing +Y.
func Plane(name string, w, d float32) *Geometry {
	x, z := w/2, d/2
	return &Geometry{
		Name: name,
		Vertices: []mgl32.Vec3{
			{-x, 0, -z}, {x, 0, -z}, {x, 0, z}, {-x, 0, z},
		},
		Indices: []uint32{0, 2, 1, 0, 3, 2},
	}
}

// Quad builds a vertical quad in the XY plane, facing +Z.
func Quad(name string, w, h float32) *Geometry {
	x := w / 2
	return &Geometry{
		Name: name,
		Vertices: []mgl32.Vec3{
			{-x, 0, 0}, {x, 0, 0}, {x, h, 0}, {-x, h, 0},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}
