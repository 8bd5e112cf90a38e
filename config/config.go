// Package config loads service configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the applyx-server runtime configuration.
type Config struct {
	Port           string
	AllowedOrigins []string

	MaxUploadBytes int64

	// FontPath optionally points at a TTF whose metrics drive mask
	// widening on export. Empty means the built-in Helvetica metrics.
	FontPath    string
	FontTimeout time.Duration

	LogLevel string
}

// Load reads the environment. A .env file in the working directory is
// applied first when present; a missing file is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envOr("PORT", "8085"),
		AllowedOrigins: splitList(envOr("ALLOWED_ORIGINS",
			"http://localhost:5173,http://localhost:3000")),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 33554432), // 32MB
		FontPath:       os.Getenv("FONT_PATH"),
		FontTimeout:    envDuration("FONT_TIMEOUT", 5*time.Second),
		LogLevel:       envOr("LOG_LEVEL", "info"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
