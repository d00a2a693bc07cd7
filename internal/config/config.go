package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL         string        // sqlite path/URL or postgres:// connection string
	Host                string
	Port                int
	LogDirectory        string        // empty logs to stdout/stderr only
	MaxBodyBytes        int64         // upper bound for POST /detections bodies
	DefaultQueryLimit   int           // rows returned by GET /detections without ?limit
	StatsDefaultMinutes int           // window used by GET /stats without ?minutes
	ShutdownTimeout     time.Duration // grace period for in-flight requests
	MetricsEnabled      bool
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal; real environment variables win either way.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:         getEnv("DETECTIONS_DB", "sqlite:///detections.db"),
		Host:                getEnv("HOST", "0.0.0.0"),
		Port:                getEnvAsInt("PORT", 5000),
		LogDirectory:        getEnv("LOG_DIR", ""),
		MaxBodyBytes:        getEnvAsInt64("MAX_BODY_BYTES", 10<<20),
		DefaultQueryLimit:   getEnvAsInt("DEFAULT_QUERY_LIMIT", 200),
		StatsDefaultMinutes: getEnvAsInt("STATS_DEFAULT_MINUTES", 5),
		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MetricsEnabled:      getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReporterConfig holds producer-side settings used by cmd/replay.
type ReporterConfig struct {
	BackendURL string        // full URL of POST /detections
	SourceID   string        // batch source when the input names none
	Timeout    time.Duration // per batch
}

// LoadReporter reads the producer settings from .env and the environment.
func LoadReporter() *ReporterConfig {
	_ = godotenv.Load()

	return &ReporterConfig{
		BackendURL: getEnv("BACKEND_URL", "http://127.0.0.1:5000/detections"),
		SourceID:   getEnv("SOURCE_ID", "camera_0"),
		Timeout:    getEnvAsDuration("REPORT_TIMEOUT", 3*time.Second),
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if c.DefaultQueryLimit <= 0 {
		return fmt.Errorf("DEFAULT_QUERY_LIMIT must be positive")
	}
	if c.StatsDefaultMinutes < 0 {
		return fmt.Errorf("STATS_DEFAULT_MINUTES must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// Addr is the listen address for net/http.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
