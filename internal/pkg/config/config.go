package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	Username string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RepositoriesConfig struct {
	Postgres PostgresConfig
}

// MarkersConfig carries the marker lifecycle and proximity tuning knobs.
// TTL and radius are deployment configuration, not protocol constants.
type MarkersConfig struct {
	TTL             time.Duration
	RadiusKm        float64
	SweepInterval   time.Duration
	PointsPerMarker int
	PointsPerLike   int
}

type Config struct {
	Repositories RepositoriesConfig
	Markers      MarkersConfig
	ServerPort   string
	MetricsPort  string
	PprofPort    string
	StoreBackend string
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

func Load() (*Config, error) {
	cfg := &Config{
		Repositories: RepositoriesConfig{
			Postgres: PostgresConfig{
				Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
				DB:       getEnvOrDefault("POSTGRES_DB", "pinpoint"),
				Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
				Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
				SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
				MaxConns: 30,
				MinConns: 5,
			},
		},
		Markers: MarkersConfig{
			TTL:             getDurationOrDefault("MARKER_TTL", 24*time.Hour),
			RadiusKm:        getFloatOrDefault("PROXIMITY_RADIUS_KM", 1.5),
			SweepInterval:   getDurationOrDefault("SWEEP_INTERVAL", time.Minute),
			PointsPerMarker: getIntOrDefault("POINTS_PER_MARKER", 5),
			PointsPerLike:   getIntOrDefault("POINTS_PER_LIKE", 1),
		},
		ServerPort:   getEnvOrDefault("SERVER_PORT", "8080"),
		MetricsPort:  getEnvOrDefault("METRICS_PORT", "9092"),
		PprofPort:    getEnvOrDefault("PPROF_PORT", "6060"),
		StoreBackend: getEnvOrDefault("STORE_BACKEND", StorePostgres),
	}

	if cfg.StoreBackend != StorePostgres && cfg.StoreBackend != StoreMemory {
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == StorePostgres && cfg.Repositories.Postgres.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable is required")
	}
	if cfg.Markers.TTL <= 0 {
		return nil, fmt.Errorf("MARKER_TTL must be positive")
	}
	if cfg.Markers.RadiusKm <= 0 {
		return nil, fmt.Errorf("PROXIMITY_RADIUS_KM must be positive")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
