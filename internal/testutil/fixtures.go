package testutil

import (
	"math/rand"
	"time"

	"github.com/worldstream/server/internal/config"
	"github.com/worldstream/server/internal/layout"
)

// TestJWTSecret signs every token issued in tests.
const TestJWTSecret = "test-secret-key-for-testing-only"

// TestFixtures provides test data generators
type TestFixtures struct {
	rng *rand.Rand
}

// NewTestFixtures creates a new test fixtures helper
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

// TestConfig returns a valid configuration with a small streaming window
// (floor strategy, 3x3 cells) and cheap bcrypt hashing. Rate limits are
// high enough not to interfere.
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		Auth: config.AuthConfig{
			JWTSecret:     TestJWTSecret,
			JWTExpiration: 15 * time.Minute,
			BCryptCost:    4,
		},
		Streaming: config.StreamingConfig{
			Strategy:      "floor",
			CellSize:      10,
			Radius:        1,
			Dims:          2,
			HighWater:     12,
			LowWater:      9,
			FailurePolicy: "skip",
			Seed:          7,
			MaxSessions:   4,
			SessionIdle:   time.Minute,
		},
		Layout: config.LayoutConfig{
			MaxCells: 200,
			Presets: map[string]config.LayoutPreset{
				"small": {
					Kind:  config.KindRooms,
					Rooms: &layout.RoomOptions{MinRooms: 3, MaxRooms: 6, LightChance: 0.5},
				},
			},
		},
		RateLimit: config.RateLimitConfig{
			GlobalLimit:  10000,
			GlobalWindow: time.Minute,
			UserLimit:    1000,
			UserWindow:   time.Minute,
			AuthLimit:    100,
			AuthWindow:   time.Minute,
		},
		Logging: config.LoggingConfig{Level: "info"},
	}
}

// NewRoomOptions returns random but valid room options.
func (f *TestFixtures) NewRoomOptions() layout.RoomOptions {
	lo := 1 + f.rng.Intn(5)
	return layout.RoomOptions{
		MinRooms:    lo,
		MaxRooms:    lo + f.rng.Intn(10),
		LightChance: f.rng.Float64(),
	}
}

// NewHallwayOptions returns random but valid hallway options.
func (f *TestFixtures) NewHallwayOptions() layout.HallwayOptions {
	lo := f.rng.Intn(3)
	length := 1 + f.rng.Intn(3)
	return layout.HallwayOptions{
		MinHallways:      lo,
		MaxHallways:      lo + f.rng.Intn(3),
		MinHallwayLength: length,
		MaxHallwayLength: length + f.rng.Intn(4),
		LightChance:      f.rng.Float64(),
	}
}
