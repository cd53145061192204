package grid

import "fmt"

// WindowSize returns the number of cells in a window of the given radius.
func WindowSize(radius int, dims Dims) int {
	side := 2*radius + 1
	if dims == Dims3D {
		return side * side * side
	}
	return side * side
}

// Window derives the cells within radius of center (Chebyshev distance).
// Order is deterministic: x, then y, then z ascending.
func Window(center Coord, radius int, dims Dims) []Coord {
	if radius < 0 {
		return nil
	}
	yMin, yMax := 0, 0
	if dims == Dims3D {
		yMin, yMax = -radius, radius
	}

	cells := make([]Coord, 0, WindowSize(radius, dims))
	for dx := -radius; dx <= radius; dx++ {
		for dy := yMin; dy <= yMax; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				cells = append(cells, Coord{
					X: center.X + dx,
					Y: center.Y + dy,
					Z: center.Z + dz,
				})
			}
		}
	}
	return cells
}

// InWindow reports whether c falls inside the window around center.
func InWindow(c, center Coord, radius int, dims Dims) bool {
	if abs(c.X-center.X) > radius || abs(c.Z-center.Z) > radius {
		return false
	}
	if dims == Dims3D {
		return abs(c.Y-center.Y) <= radius
	}
	return c.Y == center.Y
}

// WindowFits reports whether every cell of the window around center can be
// keyed without aliasing.
func WindowFits(center Coord, radius int, dims Dims) bool {
	lo := Coord{X: center.X - radius, Y: center.Y, Z: center.Z - radius}
	hi := Coord{X: center.X + radius, Y: center.Y, Z: center.Z + radius}
	if dims == Dims3D {
		lo.Y -= radius
		hi.Y += radius
	}
	return lo.Valid() && hi.Valid()
}

// Diff returns the cells present only in next (added) and only in previous (removed).
func Diff(previous, next []Coord) (added []Coord, removed []Coord) {
	prevSet := make(map[Coord]struct{}, len(previous))
	nextSet := make(map[Coord]struct{}, len(next))

	for _, c := range previous {
		prevSet[c] = struct{}{}
	}
	for _, c := range next {
		nextSet[c] = struct{}{}
		if _, exists := prevSet[c]; !exists {
			added = append(added, c)
		}
	}
	for _, c := range previous {
		if _, exists := nextSet[c]; !exists {
			removed = append(removed, c)
		}
	}
	return
}

// ValidateWindow checks window parameters before a streamer is built.
func ValidateWindow(radius int, cellSize float32, dims Dims) error {
	if radius < 0 {
		return fmt.Errorf("radius must be non-negative, got %d", radius)
	}
	if cellSize <= 0 {
		return fmt.Errorf("cell size must be positive, got %g", cellSize)
	}
	if dims != Dims2D && dims != Dims3D {
		return fmt.Errorf("dims must be 2 or 3, got %d", dims)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
