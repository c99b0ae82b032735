package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Vendor API Keys
	OpenAIAPIKey string
	GeminiAPIKey string

	// Resilience
	VendorTimeout time.Duration
	MaxAttempts   int
	BaseBackoff   time.Duration
	BackoffCap    time.Duration

	// Idempotency
	IdempotencyTTL time.Duration

	// Rate Limiting
	DefaultRateLimit int

	// Pricing (USD per 1K tokens, fixed-point decimal strings)
	VendorAInputPer1K  string
	VendorAOutputPer1K string
	VendorBInputPer1K  string
	VendorBOutputPer1K string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		VendorTimeout:    getEnvSeconds("VENDOR_TIMEOUT_SECONDS", 10),
		MaxAttempts:      getEnvInt("VENDOR_MAX_ATTEMPTS", 3),
		BaseBackoff:      getEnvSeconds("VENDOR_BASE_BACKOFF_SECONDS", 1),
		BackoffCap:       getEnvSeconds("VENDOR_BACKOFF_CAP_SECONDS", 10),
		IdempotencyTTL:   time.Duration(getEnvInt("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
		DefaultRateLimit: getEnvInt("DEFAULT_RATE_LIMIT", 100),

		VendorAInputPer1K:  getEnv("VENDOR_A_INPUT_PER_1K", "0.002"),
		VendorAOutputPer1K: getEnv("VENDOR_A_OUTPUT_PER_1K", "0.002"),
		VendorBInputPer1K:  getEnv("VENDOR_B_INPUT_PER_1K", "0.003"),
		VendorBOutputPer1K: getEnv("VENDOR_B_OUTPUT_PER_1K", "0.003"),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.OpenAIAPIKey == "" && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("at least one vendor API key is required (OPENAI_API_KEY or GEMINI_API_KEY)")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("VENDOR_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
