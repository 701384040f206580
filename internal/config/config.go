package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all runtime configuration, read from the environment.
type AppConfig struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string

	Port string

	// HTTPTimeout bounds each outbound API request.
	HTTPTimeout time.Duration

	// GeocodingBaseURL and ArchiveBaseURL default to the public Open-Meteo
	// endpoints; overridable for tests.
	GeocodingBaseURL string
	ArchiveBaseURL   string

	// Retry policy for outbound API calls: a bounded number of attempts
	// with a fixed delay in between.
	RetryMaxAttempts int
	RetryDelay       time.Duration

	// RefreshInterval controls the periodic re-backfill of stored cities;
	// zero disables it. RefreshWindowDays is the trailing window refreshed.
	RefreshInterval   time.Duration
	RefreshWindowDays int
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		DatabasePath:      getenvDefault("DATABASE_PATH", "weather-archive.db"),
		Port:              getenvDefault("PORT", "8080"),
		GeocodingBaseURL:  os.Getenv("GEOCODING_BASE_URL"),
		ArchiveBaseURL:    os.Getenv("ARCHIVE_BASE_URL"),
		RetryMaxAttempts:  getenvInt("RETRY_MAX_ATTEMPTS", 3),
		RefreshWindowDays: getenvInt("REFRESH_WINDOW_DAYS", 7),
	}

	timeout, err := getenvDuration("HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = timeout

	delay, err := getenvDuration("RETRY_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.RetryDelay = delay

	// No default: refresh stays off unless explicitly configured.
	refresh, err := getenvDuration("REFRESH_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	cfg.RefreshInterval = refresh

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
