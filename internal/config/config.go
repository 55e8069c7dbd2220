package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string
	ServerHost string

	// JWTSecret signs identity tokens. There is no safe default.
	JWTSecret string

	// Snapshot flush debouncing: quiet-period delay and the hard upper
	// bound measured from the first unflushed change.
	DebounceFlush    time.Duration
	MaxDebounceFlush time.Duration

	// SnapshotKeep bounds how many snapshot rows pruning leaves per canvas.
	SnapshotKeep int

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "artboard"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DebounceFlush:    time.Duration(getEnvInt("DEBOUNCE_FLUSH_MS", 2000)) * time.Millisecond,
		MaxDebounceFlush: time.Duration(getEnvInt("MAX_DEBOUNCE_FLUSH_MS", 10000)) * time.Millisecond,

		SnapshotKeep: getEnvInt("SNAPSHOT_KEEP", 20),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MaxDebounceFlush < cfg.DebounceFlush {
		return nil, fmt.Errorf("MAX_DEBOUNCE_FLUSH_MS must be at least DEBOUNCE_FLUSH_MS")
	}

	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
