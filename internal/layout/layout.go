package layout

import (
	"encoding/json"
	"fmt"
)

// Kind distinguishes room cells from hallway cells.
type Kind string

const (
	KindRoom    Kind = "room"
	KindHallway Kind = "hallway"
)

// Room is one occupied floorplan cell.
type Room struct {
	Position Point        `json:"position"`
	Kind     Kind         `json:"kind"`
	Walls    DirectionSet `json:"walls"`
	Doors    DirectionSet `json:"doors"`
	Light    bool         `json:"light"`
	Floor    int          `json:"floor,omitempty"`
	Stairs   bool         `json:"stairs,omitempty"`
}

type link struct {
	a, b Point
}

func makeLink(a, b Point) link {
	if b.X < a.X || (b.X == a.X && b.Y < a.Y) {
		a, b = b, a
	}
	return link{a: a, b: b}
}

// Layout is a connected set of cells grown from a seed at the origin.
// Rooms keep placement order; Rooms[0] is the seed.
type Layout struct {
	Rooms []*Room

	index map[Point]int
	links map[link]struct{}
}

// New creates an empty layout.
func New() *Layout {
	return &Layout{
		index: make(map[Point]int),
		links: make(map[link]struct{}),
	}
}

// Add places a cell at p. It returns false if p is already occupied.
func (l *Layout) Add(p Point, kind Kind) (*Room, bool) {
	if _, ok := l.index[p]; ok {
		return nil, false
	}
	r := &Room{Position: p, Kind: kind}
	l.index[p] = len(l.Rooms)
	l.Rooms = append(l.Rooms, r)
	return r, true
}

// At returns the room at p.
func (l *Layout) At(p Point) (*Room, bool) {
	i, ok := l.index[p]
	if !ok {
		return nil, false
	}
	return l.Rooms[i], true
}

// Has reports whether p is occupied.
func (l *Layout) Has(p Point) bool {
	_, ok := l.index[p]
	return ok
}

// Len returns the number of placed cells.
func (l *Layout) Len() int {
	return len(l.Rooms)
}

// Last returns the most recently placed cell.
func (l *Layout) Last() *Room {
	if len(l.Rooms) == 0 {
		return nil
	}
	return l.Rooms[len(l.Rooms)-1]
}

// Link records an opening between two adjacent cells.
func (l *Layout) Link(a, b Point) {
	l.links[makeLink(a, b)] = struct{}{}
}

// Linked reports whether an opening exists between a and b.
func (l *Layout) Linked(a, b Point) bool {
	_, ok := l.links[makeLink(a, b)]
	return ok
}

// Count returns the number of cells of the given kind.
func (l *Layout) Count(kind Kind) int {
	n := 0
	for _, r := range l.Rooms {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// ComputeWalls derives walls and doors for every cell in one full pass.
// A direction is a wall iff no cell is there; it is a door iff the two
// cells were linked while growing.
func (l *Layout) ComputeWalls() {
	for _, r := range l.Rooms {
		r.Walls, r.Doors = 0, 0
		for _, d := range Directions {
			n := r.Position.Step(d)
			if !l.Has(n) {
				r.Walls.Add(d)
				continue
			}
			if l.Linked(r.Position, n) {
				r.Doors.Add(d)
			}
		}
	}
}

// Connected reports whether every cell is reachable from the seed through
// 4-directional adjacency.
func (l *Layout) Connected() bool {
	if len(l.Rooms) == 0 {
		return true
	}
	seen := map[Point]bool{l.Rooms[0].Position: true}
	queue := []Point{l.Rooms[0].Position}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, d := range Directions {
			n := p.Step(d)
			if l.Has(n) && !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(seen) == len(l.Rooms)
}

// Bounds returns the inclusive min and max corners of the layout.
func (l *Layout) Bounds() (lo, hi Point) {
	for i, r := range l.Rooms {
		p := r.Position
		if i == 0 {
			lo, hi = p, p
			continue
		}
		lo.X = min(lo.X, p.X)
		lo.Y = min(lo.Y, p.Y)
		hi.X = max(hi.X, p.X)
		hi.Y = max(hi.Y, p.Y)
	}
	return lo, hi
}

type layoutJSON struct {
	Rooms []*Room    `json:"rooms"`
	Links [][2]Point `json:"links"`
}

// MarshalJSON encodes rooms and links.
func (l *Layout) MarshalJSON() ([]byte, error) {
	out := layoutJSON{Rooms: l.Rooms, Links: make([][2]Point, 0, len(l.links))}
	for _, r := range l.Rooms {
		for _, d := range []Direction{East, South} {
			n := r.Position.Step(d)
			if l.Linked(r.Position, n) {
				out.Links = append(out.Links, [2]Point{r.Position, n})
			}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a layout, including its index and links.
func (l *Layout) UnmarshalJSON(data []byte) error {
	var in layoutJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*l = *New()
	for _, r := range in.Rooms {
		if r == nil {
			return fmt.Errorf("null room in layout")
		}
		if _, dup := l.index[r.Position]; dup {
			return fmt.Errorf("duplicate room at %v", r.Position)
		}
		l.index[r.Position] = len(l.Rooms)
		l.Rooms = append(l.Rooms, r)
	}
	for _, pair := range in.Links {
		l.Link(pair[0], pair[1])
	}
	return nil
}
