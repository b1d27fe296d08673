package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"reserv.org/internal/obs"
)

// Config holds the runtime configuration for the service.
type Config struct {
	Addr         string
	PostgresDSN  string
	AuthSecret   string
	TokenTTL     time.Duration
	StoreTimeout time.Duration
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
}

// Load reads configuration from an optional .env file and RESERV_* env vars.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		obs.Warn("could not read .env file", map[string]any{"error": err.Error()})
	}

	cfg := &Config{
		Addr:         getEnv("RESERV_ADDR", ":8080"),
		PostgresDSN:  strings.TrimSpace(os.Getenv("RESERV_PG_DSN")),
		AuthSecret:   strings.TrimSpace(os.Getenv("RESERV_AUTH_SECRET")),
		MaxBodyBytes: 1 << 20,
	}

	var err error
	if cfg.TokenTTL, err = getDuration("RESERV_TOKEN_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getDuration("RESERV_STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = getInt("RESERV_RATE_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.RatePerSec, err = getInt("RESERV_RATE_PER_SEC", 10); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
