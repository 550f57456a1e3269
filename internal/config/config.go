// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumenjournal/lumen/internal/auth"
	"github.com/lumenjournal/lumen/internal/observability"
	"github.com/lumenjournal/lumen/internal/ratelimit"
	"github.com/lumenjournal/lumen/internal/realtime"
)

// Config is the top-level configuration. Durations are expressed as plain
// integers (seconds or milliseconds, per field name) so the file stays easy
// to hand-edit; the accessor methods convert to the component config types.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Log       observability.LogConfig `yaml:"log"`
	Auth      AuthConfig              `yaml:"auth"`
	Storage   StorageConfig           `yaml:"storage"`
	Stream    StreamConfig            `yaml:"stream"`
	RateLimit ratelimit.Config        `yaml:"rate_limit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// AuthConfig configures sessions.
type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpiryHours int    `yaml:"token_expiry_hours"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is "sqlite", "postgres", or "memory".
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// StreamConfig configures the SSE endpoints.
type StreamConfig struct {
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
	RetryHintMs      int `yaml:"retry_hint_ms"`
	SinkBuffer       int `yaml:"sink_buffer"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	stream := realtime.DefaultStreamConfig()
	return Config{
		Server: ServerConfig{
			Addr:                   ":8080",
			ShutdownTimeoutSeconds: 10,
		},
		Log: observability.LogConfig{Level: "info", Format: "text"},
		Auth: AuthConfig{
			JWTSecret:        os.Getenv("LUMEN_JWT_SECRET"),
			TokenExpiryHours: 24 * 7,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "lumen.db",
		},
		Stream: StreamConfig{
			HeartbeatSeconds: int(stream.HeartbeatInterval.Seconds()),
			RetryHintMs:      int(stream.RetryHint.Milliseconds()),
			SinkBuffer:       stream.SinkBuffer,
		},
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// Load reads the config file at path, expanding ${ENV} references, and
// merges it over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	config := Default()
	if strings.TrimSpace(path) == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}

// AuthConfig converts to the auth package's config type.
func (c Config) AuthConfig() auth.Config {
	return auth.Config{
		JWTSecret:   c.Auth.JWTSecret,
		TokenExpiry: time.Duration(c.Auth.TokenExpiryHours) * time.Hour,
	}
}

// StreamConfig converts to the realtime package's config type.
func (c Config) StreamConfig() realtime.StreamConfig {
	return realtime.StreamConfig{
		HeartbeatInterval: time.Duration(c.Stream.HeartbeatSeconds) * time.Second,
		RetryHint:         time.Duration(c.Stream.RetryHintMs) * time.Millisecond,
		SinkBuffer:        c.Stream.SinkBuffer,
	}
}
