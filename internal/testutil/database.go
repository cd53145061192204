package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/worldstream/server/internal/database"
)

// TestDBConfig holds test database configuration
type TestDBConfig struct {
	// Driver is "sqlite" (default, in memory) or "postgres".
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DefaultTestDBConfig returns a default test database configuration
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Driver:   getEnv("TEST_DB_DRIVER", database.DriverSQLite),
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getIntEnv("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "worldstream_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// DatabaseURL returns the connection string for the configured driver.
func (c TestDBConfig) DatabaseURL() string {
	if c.Driver == database.DriverSQLite {
		return ":memory:"
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

// SetupTestDB opens a layout archive for a test and closes it on cleanup.
// With TEST_DB_DRIVER=postgres the test is skipped when the server is
// unreachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultTestDBConfig()

	db, err := database.Open(context.Background(), cfg.Driver, cfg.DatabaseURL(), database.PoolOptions{
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	})
	if err != nil {
		if cfg.Driver == database.DriverPostgres {
			t.Skipf("Skipping: postgres test database unavailable: %v", err)
		}
		t.Fatalf("Failed to open test database: %v", err)
	}
	if cfg.Driver == database.DriverPostgres {
		CleanupTestDB(t, db)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return db
}

// CleanupTestDB empties the archive. Postgres test databases are shared
// between runs.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec("DELETE FROM layouts"); err != nil {
		t.Logf("Warning: Failed to empty table layouts: %v", err)
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}
