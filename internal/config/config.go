package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/worldstream/server/internal/generator"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/streaming"
)

// Config holds all configuration for the worldstream server
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Streaming StreamingConfig
	Layout    LayoutConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Environment    string
	AllowedOrigins []string
}

// DatabaseConfig selects the layout archive backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// Path is the sqlite file; ":memory:" keeps the archive in memory.
	Path string

	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	// AdminPasswordHash is a bcrypt hash; admin login is disabled when empty.
	AdminPasswordHash string
	BCryptCost        int
}

// StreamingConfig holds the defaults for new streaming sessions.
type StreamingConfig struct {
	Strategy      string
	CellSize      float64
	Radius        int
	Dims          int
	HighWater     int
	LowWater      int
	FailurePolicy string
	Seed          int64
	MaxSessions   int
	SessionIdle   time.Duration
	Profile       bool
}

// LayoutConfig holds layout generation settings.
type LayoutConfig struct {
	PresetsPath string
	// MaxCells caps the room or hallway count a request may ask for.
	MaxCells int
	Presets  map[string]LayoutPreset
}

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	GlobalLimit  int
	GlobalWindow time.Duration
	UserLimit    int
	UserWindow   time.Duration
	AuthLimit    int
	AuthWindow   time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads configuration from environment variables and .env file
// It returns a Config struct with all settings populated
// The .env file is loaded from the current working directory
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found (this is OK if using environment variables): %v", err)
	}

	config := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:    getEnv("ENVIRONMENT", "development"),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Path:            getEnv("DB_PATH", "worldstream.db"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getIntEnv("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "worldstream_dev"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConnections:  getIntEnv("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			JWTExpiration:     getDurationEnv("JWT_EXPIRATION", time.Hour),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			BCryptCost:        getIntEnv("BCRYPT_COST", 10),
		},
		Streaming: StreamingConfig{
			Strategy:      getEnv("STREAM_STRATEGY", "floor"),
			CellSize:      getFloatEnv("STREAM_CELL_SIZE", 32),
			Radius:        getIntEnv("STREAM_RADIUS", 2),
			Dims:          getIntEnv("STREAM_DIMS", 2),
			HighWater:     getIntEnv("STREAM_HIGH_WATER", 49),
			LowWater:      getIntEnv("STREAM_LOW_WATER", 36),
			FailurePolicy: getEnv("STREAM_FAILURE_POLICY", "skip"),
			Seed:          int64(getIntEnv("STREAM_SEED", 0)),
			MaxSessions:   getIntEnv("STREAM_MAX_SESSIONS", 256),
			SessionIdle:   getDurationEnv("STREAM_SESSION_IDLE", 10*time.Minute),
			Profile:       getBoolEnv("STREAM_PROFILE", false),
		},
		Layout: LayoutConfig{
			PresetsPath: getEnv("LAYOUT_PRESETS_PATH", ""),
			MaxCells:    getIntEnv("LAYOUT_MAX_CELLS", 500),
		},
		RateLimit: RateLimitConfig{
			GlobalLimit:  getIntEnv("RATE_LIMIT_GLOBAL", 1000),
			GlobalWindow: getDurationEnv("RATE_LIMIT_GLOBAL_WINDOW", time.Minute),
			UserLimit:    getIntEnv("RATE_LIMIT_USER", 500),
			UserWindow:   getDurationEnv("RATE_LIMIT_USER_WINDOW", time.Minute),
			AuthLimit:    getIntEnv("RATE_LIMIT_AUTH", 5),
			AuthWindow:   getDurationEnv("RATE_LIMIT_AUTH_WINDOW", time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			OutputPath: getEnv("LOG_OUTPUT_PATH", ""),
		},
	}

	if config.Layout.PresetsPath != "" {
		presets, err := LoadLayoutPresets(config.Layout.PresetsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load layout presets: %w", err)
		}
		config.Layout.Presets = presets
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if _, err := c.Streaming.ManagerConfig(); err != nil {
		return err
	}
	if _, err := generator.New(c.Streaming.Strategy); err != nil {
		return fmt.Errorf("STREAM_STRATEGY: %w", err)
	}
	if c.Streaming.MaxSessions <= 0 {
		return fmt.Errorf("STREAM_MAX_SESSIONS must be positive")
	}
	if c.Layout.MaxCells <= 0 {
		return fmt.Errorf("LAYOUT_MAX_CELLS must be positive")
	}
	for name, p := range c.Layout.Presets {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("layout preset %q: %w", name, err)
		}
	}
	return nil
}

// ManagerConfig converts the streaming defaults into a validated manager
// configuration.
func (s StreamingConfig) ManagerConfig() (streaming.Config, error) {
	policy, err := streaming.ParseFailurePolicy(s.FailurePolicy)
	if err != nil {
		return streaming.Config{}, fmt.Errorf("STREAM_FAILURE_POLICY: %w", err)
	}
	cfg := streaming.Config{
		CellSize:      float32(s.CellSize),
		Radius:        s.Radius,
		Dims:          grid.Dims(s.Dims),
		HighWater:     s.HighWater,
		LowWater:      s.LowWater,
		FailurePolicy: policy,
	}
	if err := cfg.Validate(); err != nil {
		return streaming.Config{}, err
	}
	return cfg, nil
}

// DatabaseURL returns the driver-specific connection string.
func (c *DatabaseConfig) DatabaseURL() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// IsDevelopment returns true if running in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// IsDebug reports whether per-chunk logging is on.
func (c *LoggingConfig) IsDebug() bool {
	return strings.EqualFold(c.Level, "debug")
}

// Helper functions for environment variable access

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return intValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid float value for %s: %s, using default: %g", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s: %s, using default: %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return duration
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
