// Package config loads runtime configuration from the environment, with an
// optional .env overlay for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string // empty disables assessment history

	BreachDataFile string
	ModelsDir      string

	RequestTimeout time.Duration
	MaxRedirects   int
	RateLimitRPM   int

	SafeBrowsingAPIKey   string
	ScanAggregatorAPIKey string

	// ShortenerOverrides are shortener-owned domains treated as regular
	// destinations rather than shortened links.
	ShortenerOverrides []string
}

// Load reads configuration. A missing .env file is fine; explicit
// environment variables always win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 envOr("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		BreachDataFile:       envOr("BREACH_DATA_FILE", "data/breaches.json"),
		ModelsDir:            envOr("MODELS_DIR", "models"),
		SafeBrowsingAPIKey:   os.Getenv("SAFE_BROWSING_API_KEY"),
		ScanAggregatorAPIKey: os.Getenv("SCAN_AGGREGATOR_API_KEY"),
	}

	timeout, err := envDuration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = timeout

	cfg.MaxRedirects, err = envInt("MAX_REDIRECTS", 10)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitRPM, err = envInt("RATE_LIMIT_RPM", 60)
	if err != nil {
		return nil, err
	}

	if raw := os.Getenv("SHORTENER_OVERRIDES"); raw != "" {
		for _, d := range strings.Split(raw, ",") {
			if d = strings.TrimSpace(strings.ToLower(d)); d != "" {
				cfg.ShortenerOverrides = append(cfg.ShortenerOverrides, d)
			}
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	// Accept both Go duration strings and bare seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, raw)
	}
	return v, nil
}
