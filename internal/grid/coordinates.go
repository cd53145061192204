package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Dims selects the shape of a streaming window.
type Dims int

const (
	// Dims2D windows are squares in the XZ plane; Y is pinned to 0.
	Dims2D Dims = 2
	// Dims3D windows are cubes.
	Dims3D Dims = 3
)

// ErrOutOfRange is returned for positions whose cell cannot be keyed.
var ErrOutOfRange = errors.New("position outside the grid")

// Packed keys use 21 bits per axis.
const (
	axisBits = 21
	axisMask = 1<<axisBits - 1
	// AxisMin and AxisMax bound the coordinates a Key can represent.
	AxisMin = -(1 << (axisBits - 1))
	AxisMax = 1<<(axisBits-1) - 1
)

// Coord identifies a cell in a uniform grid.
// Two coordinates are equal iff all three components match.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Key packs the coordinate into a single map key.
// Components outside [AxisMin, AxisMax] alias; see Valid.
func (c Coord) Key() uint64 {
	return uint64(c.X-AxisMin)&axisMask |
		(uint64(c.Y-AxisMin)&axisMask)<<axisBits |
		(uint64(c.Z-AxisMin)&axisMask)<<(2*axisBits)
}

// FromKey reverses Key.
func FromKey(k uint64) Coord {
	return Coord{
		X: int(k&axisMask) + AxisMin,
		Y: int((k>>axisBits)&axisMask) + AxisMin,
		Z: int((k>>(2*axisBits))&axisMask) + AxisMin,
	}
}

// Valid reports whether every component fits in a packed key.
func (c Coord) Valid() bool {
	return inAxis(c.X) && inAxis(c.Y) && inAxis(c.Z)
}

func inAxis(v int) bool {
	return v >= AxisMin && v <= AxisMax
}

func (c Coord) String() string {
	return fmt.Sprintf("%d_%d_%d", c.X, c.Y, c.Z)
}

// Add returns c offset by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{X: c.X + d.X, Y: c.Y + d.Y, Z: c.Z + d.Z}
}

// Distance is the Euclidean distance between two cells, in cells.
func Distance(a, b Coord) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// CellOf returns the cell enclosing a world position.
// Floor division keeps negative positions in the correct cell.
func CellOf(pos mgl32.Vec3, cellSize float32, dims Dims) Coord {
	c := Coord{
		X: floorCell(pos.X(), cellSize),
		Z: floorCell(pos.Z(), cellSize),
	}
	if dims == Dims3D {
		c.Y = floorCell(pos.Y(), cellSize)
	}
	return c
}

// Center returns the world position at the middle of a cell.
func Center(c Coord, cellSize float32) mgl32.Vec3 {
	half := cellSize / 2
	return mgl32.Vec3{
		float32(c.X)*cellSize + half,
		float32(c.Y)*cellSize + half,
		float32(c.Z)*cellSize + half,
	}
}

// Locate is CellOf for untrusted positions. It fails with ErrOutOfRange when
// the position is not finite or its cell falls outside [AxisMin, AxisMax].
func Locate(pos mgl32.Vec3, cellSize float32, dims Dims) (Coord, error) {
	axes := []float32{pos.X(), pos.Z()}
	if dims == Dims3D {
		axes = append(axes, pos.Y())
	}
	for _, v := range axes {
		f := math.Floor(float64(v) / float64(cellSize))
		if math.IsNaN(f) || f < AxisMin || f > AxisMax {
			return Coord{}, fmt.Errorf("%w: %v with cell size %g", ErrOutOfRange, pos, cellSize)
		}
	}
	return CellOf(pos, cellSize, dims), nil
}

func floorCell(v, size float32) int {
	return int(math.Floor(float64(v) / float64(size)))
}
