package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage
	DatabaseURL string // PostgreSQL; takes precedence when set
	SQLitePath  string // fallback store for development/single-node

	// Events and catalog feed
	RedisURL string

	// Admin access: bcrypt hash of the admin bearer token
	AdminTokenHash string

	// LLM backend
	LLMAPIURL    string
	LLMAPIKey    string
	LLMModel     string
	LLMMaxTokens int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     os.Getenv("SQLITE_PATH"),
		RedisURL:       os.Getenv("REDIS_URL"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		LLMAPIURL:      getEnv("LLM_API_URL", "https://api.anthropic.com"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       getEnv("LLM_MODEL", "claude-3-5-haiku-latest"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
	}

	// In production, require the durable store and the LLM credential
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.LLMAPIKey == "" {
			panic("LLM_API_KEY is required in production")
		}
		if cfg.AdminTokenHash == "" {
			panic("ADMIN_TOKEN_HASH is required in production")
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
