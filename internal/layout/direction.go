package layout

import (
	"encoding/json"
	"fmt"
	"math/bits"
)

// Direction is one of the four cardinal directions.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// Directions lists every cardinal direction in clockwise order.
var Directions = [4]Direction{North, East, South, West}

var directionNames = [4]string{"north", "east", "south", "west"}

func (d Direction) String() string {
	if d < North || d > West {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Offset returns the unit step for d. North is -Y.
func (d Direction) Offset() Point {
	switch d {
	case North:
		return Point{Y: -1}
	case East:
		return Point{X: 1}
	case South:
		return Point{Y: 1}
	default:
		return Point{X: -1}
	}
}

// Opposite returns the direction facing back.
func (d Direction) Opposite() Direction {
	return (d + 2) % 4
}

// Clockwise returns the next direction clockwise.
func (d Direction) Clockwise() Direction {
	return (d + 1) % 4
}

// ParseDirection converts a name back to a Direction.
func ParseDirection(name string) (Direction, error) {
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", name)
}

// Point is a 2D floorplan cell.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Step returns the neighbour of p in direction d.
func (p Point) Step(d Direction) Point {
	o := d.Offset()
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// DirectionSet is a small set of directions.
type DirectionSet uint8

// Add inserts d.
func (s *DirectionSet) Add(d Direction) { *s |= 1 << uint(d) }

// Has reports whether d is in the set.
func (s DirectionSet) Has(d Direction) bool { return s&(1<<uint(d)) != 0 }

// Len returns the set size.
func (s DirectionSet) Len() int { return bits.OnesCount8(uint8(s)) }

// List returns the members in clockwise order from north.
func (s DirectionSet) List() []Direction {
	out := make([]Direction, 0, s.Len())
	for _, d := range Directions {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// MarshalJSON encodes the set as a list of names.
func (s DirectionSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, s.Len())
	for _, d := range s.List() {
		names = append(names, d.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of names.
func (s *DirectionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = 0
	for _, name := range names {
		d, err := ParseDirection(name)
		if err != nil {
			return err
		}
		s.Add(d)
	}
	return nil
}
