package layout

import (
	"errors"
	"fmt"
	"math/rand"
)

// MaxFloors bounds BuildingOptions.Floors.
const MaxFloors = 64

// BuildingOptions configures GenerateBuilding.
type BuildingOptions struct {
	Floors int         `json:"floors" yaml:"floors" validate:"min=1,max=64"`
	Rooms  RoomOptions `json:"rooms" yaml:"rooms"`
}

// Validate checks the floor count and the per-floor room options.
func (o BuildingOptions) Validate() error {
	if o.Floors < 1 || o.Floors > MaxFloors {
		return fmt.Errorf("%w: floors must be within [1, %d], got %d", ErrInvalidOptions, MaxFloors, o.Floors)
	}
	return o.Rooms.Validate()
}

// Building is a stack of floor layouts sharing a stairwell at the origin.
type Building struct {
	Floors []*Layout `json:"floors"`
}

// RoomCount sums rooms across floors.
func (b *Building) RoomCount() int {
	n := 0
	for _, f := range b.Floors {
		n += f.Len()
	}
	return n
}

// GenerateBuilding grows one room layout per floor. Every floor is seeded at
// the origin, which is marked as the stairwell when there is more than one
// floor. A floor that runs out of retries keeps its partial layout.
func GenerateBuilding(opts BuildingOptions, rng *rand.Rand) (*Building, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	b := &Building{Floors: make([]*Layout, 0, opts.Floors)}
	var exhausted error
	for floor := 0; floor < opts.Floors; floor++ {
		l, err := GenerateRooms(opts.Rooms, rng)
		if err != nil && !errors.Is(err, ErrRetriesExhausted) {
			return nil, fmt.Errorf("floor %d: %w", floor, err)
		}
		if err != nil && exhausted == nil {
			exhausted = fmt.Errorf("floor %d: %w", floor, err)
		}
		for _, r := range l.Rooms {
			r.Floor = floor
		}
		if opts.Floors > 1 {
			l.Rooms[0].Stairs = true
		}
		b.Floors = append(b.Floors, l)
	}
	return b, exhausted
}
