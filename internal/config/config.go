package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort             = 8080
	defaultCatalogPath      = "data/sensors.json"
	defaultPurpleAirBaseURL = "https://api.purpleair.com/v1"
	defaultAcuRiteBaseURL   = "https://dataapi.myacurite.com"
	defaultPurpleAirTimeout = 20 * time.Second
	defaultAcuRiteTimeout   = 10 * time.Second
	defaultPurpleAirHistory = 144
	defaultAcuRiteHistory   = 168
	defaultLookbackWindow   = 6 * time.Hour
	defaultAverageMinutes   = 10
	defaultPurpleAirFields  = "temperature, humidity, pm2.5_alt, pressure"
)

// Config holds environment-driven settings for the ingestion API.
type Config struct {
	DatabaseURL string
	Port        int
	CatalogPath string

	PurpleAirAPIKey  string
	PurpleAirBaseURL string
	AcuRiteBaseURL   string
	PurpleAirTimeout time.Duration
	AcuRiteTimeout   time.Duration

	PurpleAirHistoryLimit int
	AcuRiteHistoryLimit   int
	LookbackWindow        time.Duration
	DefaultAverage        int
	DefaultFields         string

	// RefreshInterval enables the background catalog refresh when positive.
	RefreshInterval time.Duration
	// AlwaysFetchFresh mirrors the upstream-on-every-request policy; set to
	// false to serve stored data only.
	AlwaysFetchFresh bool

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:                  defaultPort,
		CatalogPath:           defaultCatalogPath,
		PurpleAirBaseURL:      defaultPurpleAirBaseURL,
		AcuRiteBaseURL:        defaultAcuRiteBaseURL,
		PurpleAirTimeout:      defaultPurpleAirTimeout,
		AcuRiteTimeout:        defaultAcuRiteTimeout,
		PurpleAirHistoryLimit: defaultPurpleAirHistory,
		AcuRiteHistoryLimit:   defaultAcuRiteHistory,
		LookbackWindow:        defaultLookbackWindow,
		DefaultAverage:        defaultAverageMinutes,
		DefaultFields:         defaultPurpleAirFields,
		AlwaysFetchFresh:      true,
		LogLevel:              "info",
		LogFormat:             "text",
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	cfg.PurpleAirAPIKey = os.Getenv("PURPLEAIR_API_KEY")

	if v := os.Getenv("SENSOR_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("PURPLEAIR_BASE_URL"); v != "" {
		cfg.PurpleAirBaseURL = v
	}
	if v := os.Getenv("ACURITE_BASE_URL"); v != "" {
		cfg.AcuRiteBaseURL = v
	}
	if v := os.Getenv("DEFAULT_FIELDS"); v != "" {
		cfg.DefaultFields = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	}

	var err error
	if cfg.PurpleAirTimeout, err = durationEnv("PURPLEAIR_TIMEOUT", cfg.PurpleAirTimeout); err != nil {
		return cfg, err
	}
	if cfg.AcuRiteTimeout, err = durationEnv("ACURITE_TIMEOUT", cfg.AcuRiteTimeout); err != nil {
		return cfg, err
	}
	if cfg.LookbackWindow, err = durationEnv("LOOKBACK_WINDOW", cfg.LookbackWindow); err != nil {
		return cfg, err
	}
	if cfg.RefreshInterval, err = durationEnv("REFRESH_INTERVAL", 0); err != nil {
		return cfg, err
	}

	if cfg.PurpleAirHistoryLimit, err = intEnv("PURPLEAIR_HISTORY_LIMIT", cfg.PurpleAirHistoryLimit); err != nil {
		return cfg, err
	}
	if cfg.AcuRiteHistoryLimit, err = intEnv("ACURITE_HISTORY_LIMIT", cfg.AcuRiteHistoryLimit); err != nil {
		return cfg, err
	}
	if cfg.DefaultAverage, err = intEnv("DEFAULT_AVERAGE", cfg.DefaultAverage); err != nil {
		return cfg, err
	}

	if v := strings.TrimSpace(os.Getenv("ALWAYS_FETCH_FRESH")); v != "" {
		cfg.AlwaysFetchFresh = v == "1" || strings.EqualFold(v, "true")
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("invalid %s: %s", key, v)
	}
	return n, nil
}
