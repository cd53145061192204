package config

import (
	"fmt"
	"os"

	"github.com/worldstream/server/internal/layout"
	"gopkg.in/yaml.v3"
)

// Layout kinds a preset can describe.
const (
	KindRooms           = "rooms"
	KindHallways        = "hallways"
	KindRoomsOnHallways = "rooms_on_hallways"
	KindBuilding        = "building"
)

// LayoutPreset is a named set of layout options, read from a YAML file of
// the form:
//
//	presets:
//	  office:
//	    kind: rooms_on_hallways
//	    hallways: {min_hallways: 2, max_hallways: 4, min_hallway_length: 3, max_hallway_length: 6}
//	    attach: {min_rooms: 4, max_rooms: 8, min_room_size: 1, max_room_size: 3}
type LayoutPreset struct {
	Kind     string                 `yaml:"kind" json:"kind"`
	Rooms    *layout.RoomOptions    `yaml:"rooms,omitempty" json:"rooms,omitempty"`
	Hallways *layout.HallwayOptions `yaml:"hallways,omitempty" json:"hallways,omitempty"`
	Attach   *layout.AttachOptions  `yaml:"attach,omitempty" json:"attach,omitempty"`
	Floors   int                    `yaml:"floors,omitempty" json:"floors,omitempty"`
}

type presetFile struct {
	Presets map[string]LayoutPreset `yaml:"presets"`
}

// Validate checks that the preset carries the options its kind needs.
func (p LayoutPreset) Validate() error {
	switch p.Kind {
	case KindRooms:
		if p.Rooms == nil {
			return fmt.Errorf("kind %s requires rooms options", p.Kind)
		}
		return p.Rooms.Validate()
	case KindHallways:
		if p.Hallways == nil {
			return fmt.Errorf("kind %s requires hallways options", p.Kind)
		}
		return p.Hallways.Validate()
	case KindRoomsOnHallways:
		if p.Hallways == nil || p.Attach == nil {
			return fmt.Errorf("kind %s requires hallways and attach options", p.Kind)
		}
		if err := p.Hallways.Validate(); err != nil {
			return err
		}
		return p.Attach.Validate()
	case KindBuilding:
		if p.Rooms == nil {
			return fmt.Errorf("kind %s requires rooms options", p.Kind)
		}
		return layout.BuildingOptions{Floors: p.Floors, Rooms: *p.Rooms}.Validate()
	default:
		return fmt.Errorf("unknown layout kind %q", p.Kind)
	}
}

// LoadLayoutPresets reads and validates a presets file.
func LoadLayoutPresets(path string) (map[string]LayoutPreset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f presetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for name, p := range f.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: preset %q: %w", path, name, err)
		}
	}
	return f.Presets, nil
}
