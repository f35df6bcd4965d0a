package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Artifact storage
	StaticDir string
	UploadDir string

	// Record store
	DatabasePath string

	// Inference service (black-box detection model)
	InferenceURL            string
	ConfidenceThreshold     float64
	LiveConfidenceThreshold float64

	// Identity provider
	IdentityBaseURL string
	IdentityAPIKey  string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Token verification cache
	TokenCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Dev mode: DEV_AUTH=true verifies HS256 tokens locally instead of
	// calling the identity provider.
	DevAuth       bool
	DevAuthSecret string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StaticDir: getEnv("STATIC_DIR", "static"),
		UploadDir: getEnv("UPLOAD_DIR", "static/uploads"),

		DatabasePath: getEnv("DATABASE_PATH", "defects.db"),

		InferenceURL:            getEnv("INFERENCE_URL", "http://localhost:8090"),
		ConfidenceThreshold:     getEnvFloat("CONFIDENCE_THRESHOLD", 0.25),
		LiveConfidenceThreshold: getEnvFloat("LIVE_CONFIDENCE_THRESHOLD", 0.05),

		IdentityBaseURL: getEnv("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com"),
		IdentityAPIKey:  getEnv("IDENTITY_API_KEY", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		TokenCacheTTL: getEnvDuration("TOKEN_CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		DevAuth:       getEnv("DEV_AUTH", "false") == "true",
		DevAuthSecret: getEnv("DEV_AUTH_SECRET", "defect-api-dev-secret-change-me"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
