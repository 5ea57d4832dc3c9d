package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Remote backends selectable with REMOTE_BACKEND. "none" selects BackendNone.
const (
	BackendNone     = ""
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"3000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	SessionSecret  string        `env:"SESSION_SECRET"`
	SessionMaxAge  time.Duration `env:"SESSION_MAX_AGE" default:"24h"`
	ViewerPassword string        `env:"VIEWER_PASSWORD"`
	AdminPassword  string        `env:"ADMIN_PASSWORD"`

	RemoteBackend string `env:"REMOTE_BACKEND" default:"redis"`
	RedisURL      string `env:"REDIS_URL"`
	RedisStateKey string `env:"REDIS_STATE_KEY" default:"donationpulse:state"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SnapshotPath  string `env:"SNAPSHOT_PATH" default:"data.json"`

	StaticDir     string `env:"STATIC_DIR" default:"public"`
	DefaultEmojis string `env:"DEFAULT_EMOJIS"`

	MaxWebSocketConnections      int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxWebSocketConnectionsPerIP int     `env:"MAX_WEBSOCKET_CONNECTIONS_PER_IP" default:"50"`
	WebSocketConnectRate         float64 `env:"WEBSOCKET_CONNECT_RATE" default:"10"`
	WebSocketConnectBurst        int     `env:"WEBSOCKET_CONNECT_BURST" default:"20"`

	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" default:"*"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.RemoteBackend = strings.ToLower(strings.TrimSpace(cfg.RemoteBackend))
	if cfg.RemoteBackend == "none" {
		cfg.RemoteBackend = BackendNone
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AllowOrigins splits CORS_ALLOW_ORIGINS on commas.
func (c *Config) AllowOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"SESSION_SECRET", cfg.SessionSecret},
		{"VIEWER_PASSWORD", cfg.ViewerPassword},
		{"ADMIN_PASSWORD", cfg.AdminPassword},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	switch cfg.RemoteBackend {
	case BackendNone:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when REMOTE_BACKEND is redis")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when REMOTE_BACKEND is postgres")
		}
		if cfg.IsProduction() && sslModeDisabled(cfg.DatabaseURL) {
			return errors.New("DATABASE_URL must not use sslmode=disable in production")
		}
	default:
		return fmt.Errorf("REMOTE_BACKEND must be one of redis, postgres or none, got %q", cfg.RemoteBackend)
	}

	if cfg.SessionMaxAge <= 0 {
		return errors.New("SESSION_MAX_AGE must be positive")
	}
	if cfg.SnapshotPath == "" {
		return errors.New("SNAPSHOT_PATH must not be empty")
	}

	return nil
}

func sslModeDisabled(databaseURL string) bool {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return false
	}
	return u.Query().Get("sslmode") == "disable"
}
