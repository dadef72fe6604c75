package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the client settings. Every field can be set from a
// CLDZLIVE_-prefixed environment variable; flags override them.
type Config struct {
	ServerURL string `env:"SERVER" envDefault:"http://localhost:8000"`
	RoomID    string `env:"ROOM_ID"`
	RoomName  string `env:"ROOM_NAME"`
	Username  string `env:"USERNAME"`
	AnchorID  string `env:"ANCHOR_ID"` // fork target for branching

	PollInterval         time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY" envDefault:"2s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	ScrollThreshold      int           `env:"SCROLL_THRESHOLD" envDefault:"50"`
	SendsPerMinute       int           `env:"SENDS_PER_MINUTE" envDefault:"15"`

	Debug       bool   `env:"DEBUG"`
	DebugLog    string `env:"DEBUG_LOG" envDefault:"debug.log"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

const envPrefix = "CLDZLIVE_"

// Load reads configuration from the environment, loading a .env file first
// if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings a chat view cannot start without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("server url: missing host")
	}
	if c.RoomID == "" {
		return errors.New("room id is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.ReconnectDelay < 0 {
		return errors.New("reconnect delay must not be negative")
	}
	if c.MaxReconnectAttempts < 1 {
		return errors.New("max reconnect attempts must be at least 1")
	}
	if c.SendsPerMinute < 1 {
		return errors.New("sends per minute must be at least 1")
	}
	if c.ScrollThreshold < 0 {
		return errors.New("scroll threshold must not be negative")
	}
	return nil
}
