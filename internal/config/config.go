// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the moderation service. Policy thresholds
// default to the documented values; changing them changes enforcement for
// all users, so overrides should be deliberate.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"postgres://localhost:5432/driftthreads?sslmode=disable"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:""`
	NATSURL     string `envconfig:"NATS_URL" default:""`

	// Abuse policy thresholds.
	Cooldown    time.Duration `envconfig:"COOLDOWN" default:"3s"`
	BurstWindow time.Duration `envconfig:"BURST_WINDOW" default:"30s"`
	BurstLimit  int           `envconfig:"BURST_LIMIT" default:"8"`
	BanDuration time.Duration `envconfig:"BAN_DURATION" default:"10m"`

	// Retention.
	RetentionHorizon time.Duration `envconfig:"RETENTION_HORIZON" default:"72h"`
	PurgeInterval    time.Duration `envconfig:"PURGE_INTERVAL" default:"1h"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads configuration from the environment, applying defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.BurstLimit <= 0 {
		return Config{}, fmt.Errorf("config: BURST_LIMIT must be positive, got %d", cfg.BurstLimit)
	}
	if cfg.RetentionHorizon <= 0 {
		return Config{}, fmt.Errorf("config: RETENTION_HORIZON must be positive, got %s", cfg.RetentionHorizon)
	}
	return cfg, nil
}
