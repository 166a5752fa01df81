package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tinylink/internal/logger"
)

// Config holds all configuration for the application
type Config struct {
	Port            int           `json:"port"`
	DatabaseURL     string        `json:"database_url"`
	Environment     string        `json:"environment"`
	CORSOrigin      string        `json:"cors_origin"`
	TrustProxy      bool          `json:"trust_proxy"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	DBMaxConns      int           `json:"db_max_conns"`
	MaxCodeAttempts int           `json:"max_code_attempts"`
	EventsEnabled   bool          `json:"events_enabled"`
	Logging         logger.Config `json:"logging"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 5000),
		DatabaseURL:     getEnv("DATABASE_URL", "tinylink.db"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		CORSOrigin:      getEnv("CORS_ORIGIN", "http://localhost:3000"),
		TrustProxy:      getEnvAsBool("TRUST_PROXY", false),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Second),
		DBMaxConns:      getEnvAsInt("DB_MAX_CONNS", 10),
		MaxCodeAttempts: getEnvAsInt("MAX_CODE_ATTEMPTS", 5),
		EventsEnabled:   getEnvAsBool("EVENTS_ENABLED", true),
		Logging: logger.Config{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	return cfg, nil
}

// UsesPostgres reports whether DatabaseURL points at a PostgreSQL server
// rather than a SQLite file.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt gets an environment variable as a positive integer with a fallback value
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
