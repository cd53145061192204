package layout

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"math/rand"
)

// ErrRetriesExhausted is returned when growth gives up before reaching its
// target. The partial layout returned alongside it is still connected.
var ErrRetriesExhausted = errors.New("layout retries exhausted")

// ErrInvalidOptions wraps option validation failures.
var ErrInvalidOptions = errors.New("invalid layout options")

// attemptsPerCell bounds retries when MaxAttempts is not set.
const attemptsPerCell = 64

// Upper bounds on option values. Counts, lengths and sizes share MaxCount.
const (
	MaxCount       = 65536
	MaxAttemptsCap = 1 << 20
)

// RoomOptions configures GenerateRooms.
type RoomOptions struct {
	MinRooms    int     `json:"min_rooms" yaml:"min_rooms" validate:"min=1,max=65536"`
	MaxRooms    int     `json:"max_rooms" yaml:"max_rooms" validate:"min=1,max=65536,gtefield=MinRooms"`
	LightChance float64 `json:"light_chance" yaml:"light_chance" validate:"min=0,max=1"`
	MaxAttempts int     `json:"max_attempts,omitempty" yaml:"max_attempts" validate:"min=0,max=1048576"`
}

// Validate checks ranges before any growth happens.
func (o RoomOptions) Validate() error {
	if o.MinRooms < 1 {
		return fmt.Errorf("%w: min_rooms must be at least 1, got %d", ErrInvalidOptions, o.MinRooms)
	}
	if o.MaxRooms < o.MinRooms {
		return fmt.Errorf("%w: max_rooms (%d) must be >= min_rooms (%d)", ErrInvalidOptions, o.MaxRooms, o.MinRooms)
	}
	if err := validateMax("max_rooms", o.MaxRooms); err != nil {
		return err
	}
	return validateCommon(o.LightChance, o.MaxAttempts)
}

// HallwayOptions configures GenerateHallways.
type HallwayOptions struct {
	MinHallways      int     `json:"min_hallways" yaml:"min_hallways" validate:"min=0,max=65536"`
	MaxHallways      int     `json:"max_hallways" yaml:"max_hallways" validate:"min=0,max=65536,gtefield=MinHallways"`
	MinHallwayLength int     `json:"min_hallway_length" yaml:"min_hallway_length" validate:"min=1,max=65536"`
	MaxHallwayLength int     `json:"max_hallway_length" yaml:"max_hallway_length" validate:"min=1,max=65536,gtefield=MinHallwayLength"`
	LightChance      float64 `json:"light_chance" yaml:"light_chance" validate:"min=0,max=1"`
	MaxAttempts      int     `json:"max_attempts,omitempty" yaml:"max_attempts" validate:"min=0,max=1048576"`
}

// Validate checks ranges before any growth happens.
func (o HallwayOptions) Validate() error {
	if o.MinHallways < 0 {
		return fmt.Errorf("%w: min_hallways must be non-negative, got %d", ErrInvalidOptions, o.MinHallways)
	}
	if o.MaxHallways < o.MinHallways {
		return fmt.Errorf("%w: max_hallways (%d) must be >= min_hallways (%d)", ErrInvalidOptions, o.MaxHallways, o.MinHallways)
	}
	if o.MinHallwayLength < 1 {
		return fmt.Errorf("%w: min_hallway_length must be at least 1, got %d", ErrInvalidOptions, o.MinHallwayLength)
	}
	if o.MaxHallwayLength < o.MinHallwayLength {
		return fmt.Errorf("%w: max_hallway_length (%d) must be >= min_hallway_length (%d)", ErrInvalidOptions, o.MaxHallwayLength, o.MinHallwayLength)
	}
	if err := validateMax("max_hallways", o.MaxHallways); err != nil {
		return err
	}
	if err := validateMax("max_hallway_length", o.MaxHallwayLength); err != nil {
		return err
	}
	return validateCommon(o.LightChance, o.MaxAttempts)
}

// AttachOptions configures GenerateRoomsOnHallways.
type AttachOptions struct {
	MinRooms    int     `json:"min_rooms" yaml:"min_rooms" validate:"min=0,max=65536"`
	MaxRooms    int     `json:"max_rooms" yaml:"max_rooms" validate:"min=0,max=65536,gtefield=MinRooms"`
	MinRoomSize int     `json:"min_room_size" yaml:"min_room_size" validate:"min=1,max=65536"`
	MaxRoomSize int     `json:"max_room_size" yaml:"max_room_size" validate:"min=1,max=65536,gtefield=MinRoomSize"`
	LightChance float64 `json:"light_chance" yaml:"light_chance" validate:"min=0,max=1"`
	MaxAttempts int     `json:"max_attempts,omitempty" yaml:"max_attempts" validate:"min=0,max=1048576"`
}

// Validate checks ranges before any growth happens.
func (o AttachOptions) Validate() error {
	if o.MinRooms < 0 {
		return fmt.Errorf("%w: min_rooms must be non-negative, got %d", ErrInvalidOptions, o.MinRooms)
	}
	if o.MaxRooms < o.MinRooms {
		return fmt.Errorf("%w: max_rooms (%d) must be >= min_rooms (%d)", ErrInvalidOptions, o.MaxRooms, o.MinRooms)
	}
	if o.MinRoomSize < 1 {
		return fmt.Errorf("%w: min_room_size must be at least 1, got %d", ErrInvalidOptions, o.MinRoomSize)
	}
	if o.MaxRoomSize < o.MinRoomSize {
		return fmt.Errorf("%w: max_room_size (%d) must be >= min_room_size (%d)", ErrInvalidOptions, o.MaxRoomSize, o.MinRoomSize)
	}
	if err := validateMax("max_rooms", o.MaxRooms); err != nil {
		return err
	}
	if err := validateMax("max_room_size", o.MaxRoomSize); err != nil {
		return err
	}
	return validateCommon(o.LightChance, o.MaxAttempts)
}

func validateCommon(lightChance float64, maxAttempts int) error {
	if lightChance < 0 || lightChance > 1 {
		return fmt.Errorf("%w: light_chance must be within [0, 1], got %g", ErrInvalidOptions, lightChance)
	}
	if maxAttempts < 0 || maxAttempts > MaxAttemptsCap {
		return fmt.Errorf("%w: max_attempts must be within [0, %d], got %d", ErrInvalidOptions, MaxAttemptsCap, maxAttempts)
	}
	return nil
}

func validateMax(name string, v int) error {
	if v > MaxCount {
		return fmt.Errorf("%w: %s must be at most %d, got %d", ErrInvalidOptions, name, MaxCount, v)
	}
	return nil
}

// placement is a proposed cell next to an existing one.
type placement struct {
	from Point
	dir  Direction
}

func (p placement) to() Point { return p.from.Step(p.dir) }

// frontier yields proposals from uniformly random existing cells of pool.
func frontier(pool func() []Point, rng *rand.Rand) iter.Seq[placement] {
	return func(yield func(placement) bool) {
		for {
			cells := pool()
			if len(cells) == 0 {
				return
			}
			p := placement{
				from: cells[rng.Intn(len(cells))],
				dir:  Directions[rng.Intn(len(Directions))],
			}
			if !yield(p) {
				return
			}
		}
	}
}

// grow accepts frontier proposals into l until target new cells are placed
// or maxAttempts proposals have been tried. onPlace sees each accepted cell
// before the next proposal is drawn.
func grow(l *Layout, proposals iter.Seq[placement], kind Kind, target, maxAttempts int, onPlace func(Point)) ([]Point, error) {
	placed := make([]Point, 0, max(target, 0))
	if target <= 0 {
		return placed, nil
	}
	attempts := 0
	for p := range proposals {
		attempts++
		if attempts > maxAttempts {
			return placed, fmt.Errorf("%w: placed %d of %d cells in %d attempts", ErrRetriesExhausted, len(placed), target, maxAttempts)
		}
		to := p.to()
		if l.Has(to) {
			continue
		}
		l.Add(to, kind)
		l.Link(p.from, to)
		placed = append(placed, to)
		if onPlace != nil {
			onPlace(to)
		}
		if len(placed) >= target {
			break
		}
	}
	return placed, nil
}

func between(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

func attemptBudget(configured, target int) int {
	if configured > 0 {
		return configured
	}
	return max(target, 1) * attemptsPerCell
}

func assignLights(rooms []*Room, chance float64, rng *rand.Rand) {
	for _, r := range rooms {
		r.Light = rng.Float64() < chance
	}
}

// GenerateRooms grows a connected cluster of rooms from a seed at the origin.
// The total count, seed included, is drawn from [MinRooms, MaxRooms].
func GenerateRooms(opts RoomOptions, rng *rand.Rand) (*Layout, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	l := New()
	l.Add(Point{}, KindRoom)
	target := between(rng, opts.MinRooms, opts.MaxRooms)

	cells := []Point{{}}
	pool := func() []Point { return cells }
	_, err := grow(l, frontier(pool, rng), KindRoom, target-1, attemptBudget(opts.MaxAttempts, target), func(p Point) {
		cells = append(cells, p)
	})

	assignLights(l.Rooms, opts.LightChance, rng)
	l.ComputeWalls()
	if err != nil {
		log.Printf("[Layout] GenerateRooms: %v", err)
		return l, err
	}
	return l, nil
}

// GenerateHallways lays out straight hallway runs from a seed at the origin.
// Each hallway extends the most recently placed cell along one direction
// that persists for the whole run.
func GenerateHallways(opts HallwayOptions, rng *rand.Rand) (*Layout, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	l := New()
	l.Add(Point{}, KindHallway)

	hallways := between(rng, opts.MinHallways, opts.MaxHallways)
	budget := attemptBudget(opts.MaxAttempts, hallways*opts.MaxHallwayLength)
	attempts := 0
	prev := Direction(-1)

	var err error
	for h := 0; h < hallways && err == nil; h++ {
		length := between(rng, opts.MinHallwayLength, opts.MaxHallwayLength)
		dir, ok := pickHallwayDirection(l, prev, rng)
		if !ok {
			err = fmt.Errorf("%w: hallway %d is boxed in at %v", ErrRetriesExhausted, h, l.Last().Position)
			break
		}

		for step := 0; step < length; step++ {
			attempts++
			if attempts > budget {
				err = fmt.Errorf("%w: hallway budget of %d attempts spent", ErrRetriesExhausted, budget)
				break
			}
			from := l.Last().Position
			to := from.Step(dir)
			if l.Has(to) {
				// Turn instead of crossing an existing run.
				next, ok := pickHallwayDirection(l, dir, rng)
				if !ok {
					err = fmt.Errorf("%w: hallway %d is boxed in at %v", ErrRetriesExhausted, h, from)
					break
				}
				dir = next
				to = from.Step(dir)
			}
			l.Add(to, KindHallway)
			l.Link(from, to)
		}
		prev = dir
	}

	assignLights(l.Rooms, opts.LightChance, rng)
	l.ComputeWalls()
	if err != nil {
		log.Printf("[Layout] GenerateHallways: %v", err)
		return l, err
	}
	return l, nil
}

// pickHallwayDirection picks a random free direction from the last cell,
// never doubling straight back along prev.
func pickHallwayDirection(l *Layout, prev Direction, rng *rand.Rand) (Direction, bool) {
	from := l.Last().Position
	start := rng.Intn(len(Directions))
	for i := range Directions {
		d := Directions[(start+i)%len(Directions)]
		if prev >= North && d == prev.Opposite() {
			continue
		}
		if !l.Has(from.Step(d)) {
			return d, true
		}
	}
	return 0, false
}

// GenerateRoomsOnHallways attaches rooms to the hallway cells of l.
//
// For each room a random hallway cell and side are chosen. If the room's base
// cell is taken, the side is rotated clockwise up to four times; if every
// side is taken the room is skipped, so fewer rooms than requested may be
// placed. Rooms larger than one cell grow from their base like GenerateRooms.
func GenerateRoomsOnHallways(l *Layout, opts AttachOptions, rng *rand.Rand) (int, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	var hallways []Point
	for _, r := range l.Rooms {
		if r.Kind == KindHallway {
			hallways = append(hallways, r.Position)
		}
	}
	if len(hallways) == 0 {
		return 0, fmt.Errorf("%w: layout has no hallway cells", ErrInvalidOptions)
	}

	requested := between(rng, opts.MinRooms, opts.MaxRooms)
	placedRooms := 0
	var placedCells []*Room

	for i := 0; i < requested; i++ {
		anchor := hallways[rng.Intn(len(hallways))]
		dir := Directions[rng.Intn(len(Directions))]

		base, ok := Point{}, false
		for flip := 0; flip < len(Directions); flip++ {
			candidate := anchor.Step(dir)
			if !l.Has(candidate) {
				base, ok = candidate, true
				break
			}
			dir = dir.Clockwise()
		}
		if !ok {
			log.Printf("[Layout] GenerateRoomsOnHallways: no free side at %v, skipping room %d", anchor, i)
			continue
		}

		room, _ := l.Add(base, KindRoom)
		l.Link(anchor, base)
		placedCells = append(placedCells, room)
		placedRooms++

		size := between(rng, opts.MinRoomSize, opts.MaxRoomSize)
		members := []Point{base}
		pool := func() []Point { return members }
		_, err := grow(l, frontier(pool, rng), KindRoom, size-1, attemptBudget(opts.MaxAttempts, size), func(p Point) {
			members = append(members, p)
			r, _ := l.At(p)
			placedCells = append(placedCells, r)
		})
		if err != nil {
			log.Printf("[Layout] GenerateRoomsOnHallways: room %d stopped at %d cells: %v", i, len(members), err)
		}
	}

	assignLights(placedCells, opts.LightChance, rng)
	l.ComputeWalls()
	return placedRooms, nil
}
