package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string
	SQLitePath  string

	// Presence sweeper
	SweepInterval time.Duration

	// Blob storage
	BlobBaseURL string
	BlobBucket  string
	BlobAPIKey  string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/palaver.db"),
		BlobBaseURL: os.Getenv("BLOB_BASE_URL"),
		BlobBucket:  getEnv("BLOB_BUCKET", "media"),
		BlobAPIKey:  os.Getenv("BLOB_API_KEY"),
	}

	cfg.SweepInterval = getDuration("SWEEP_INTERVAL", 15*time.Second)

	// In production, require redis and blob storage
	if cfg.Env == "production" {
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.BlobBaseURL == "" {
			panic("BLOB_BASE_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
