package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds the runtime configuration of the realtime push server, loaded
// from the environment.
type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// DatabaseURL enables the Postgres-backed initial-state snapshots.
	// Optional: without it new connections get no snapshot.
	DatabaseURL string `env:"DATABASE_URL"`

	// RedisURL enables the presence tracker. Optional.
	RedisURL string `env:"REDIS_URL"`

	// WSAuthSecret enables handshake token verification. Optional: without
	// it any claimed identity is accepted (trusted-network deployments).
	WSAuthSecret string `env:"WS_AUTH_SECRET"`

	// NotifySecret guards the internal notify endpoint the CRUD layer
	// calls. Optional for single-host deployments.
	NotifySecret string `env:"NOTIFY_SECRET"`

	MaxConnections       int64         `env:"MAX_CONNECTIONS" default:"10000"`
	ConnectionsPerSecond float64       `env:"CONNECTIONS_PER_SECOND" default:"10"`
	ConnectionBurst      int           `env:"CONNECTION_BURST" default:"10"`
	HandshakeTimeout     time.Duration `env:"HANDSHAKE_TIMEOUT" default:"10s"`
	SnapshotTimeout      time.Duration `env:"SNAPSHOT_TIMEOUT" default:"3s"`
}

// Load reads configuration from a .env file (if present) and the process
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive")
	}
	if cfg.ConnectionsPerSecond <= 0 {
		return fmt.Errorf("CONNECTIONS_PER_SECOND must be positive")
	}
	if cfg.ConnectionBurst <= 0 {
		return fmt.Errorf("CONNECTION_BURST must be positive")
	}
	if cfg.HandshakeTimeout <= 0 {
		return fmt.Errorf("HANDSHAKE_TIMEOUT must be positive")
	}
	if cfg.WSAuthSecret != "" && len(cfg.WSAuthSecret) < 16 {
		return fmt.Errorf("WS_AUTH_SECRET must be at least 16 characters")
	}
	return nil
}
