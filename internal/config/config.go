package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/claude/setplayer/internal/session"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store"`
	Plans     PlansConfig     `yaml:"plans"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// SessionConfig tunes the workout engine. Zero values take the engine
// defaults.
type SessionConfig struct {
	SnapshotKey         string `yaml:"snapshot_key"`
	DefaultRestSeconds  int    `yaml:"default_rest_seconds"`
	CountdownCueSeconds int    `yaml:"countdown_cue_seconds"`
	TickIntervalMillis  int    `yaml:"tick_interval_ms"`
}

// StoreConfig picks where plans, history and snapshots live.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	// Dir holds the SQLite database when Backend is sqlite.
	Dir string `yaml:"dir"`
}

// PlansConfig points at a directory of YAML plan files. When set, plans are
// read from there instead of the store.
type PlansConfig struct {
	Dir string `yaml:"dir"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Engine converts the section into the engine's configuration.
func (s SessionConfig) Engine() session.Config {
	return session.Config{
		SnapshotKey:  s.SnapshotKey,
		DefaultRest:  time.Duration(s.DefaultRestSeconds) * time.Second,
		CountdownCue: time.Duration(s.CountdownCueSeconds) * time.Second,
		TickInterval: time.Duration(s.TickIntervalMillis) * time.Millisecond,
	}
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix SETPLAYER_ and underscore-separated paths:
//
//	SETPLAYER_SERVER_HOST, SETPLAYER_SERVER_PORT,
//	SETPLAYER_DB_HOST, SETPLAYER_DB_PORT, SETPLAYER_DB_NAME,
//	SETPLAYER_DB_USER, SETPLAYER_DB_PASSWORD, SETPLAYER_DB_SSLMODE,
//	SETPLAYER_AUTH_API_KEY, SETPLAYER_TAILSCALE_ENABLED,
//	SETPLAYER_STORE_BACKEND, SETPLAYER_STORE_DIR, SETPLAYER_PLANS_DIR,
//	SETPLAYER_SESSION_DEFAULT_REST_SECONDS
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.defaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("SETPLAYER_SERVER_HOST", &cfg.Server.Host)
	num("SETPLAYER_SERVER_PORT", &cfg.Server.Port)
	str("SETPLAYER_DB_HOST", &cfg.Database.Host)
	num("SETPLAYER_DB_PORT", &cfg.Database.Port)
	str("SETPLAYER_DB_NAME", &cfg.Database.Name)
	str("SETPLAYER_DB_USER", &cfg.Database.User)
	str("SETPLAYER_DB_PASSWORD", &cfg.Database.Password)
	str("SETPLAYER_DB_SSLMODE", &cfg.Database.SSLMode)
	str("SETPLAYER_AUTH_API_KEY", &cfg.Auth.APIKey)
	if v := os.Getenv("SETPLAYER_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	str("SETPLAYER_STORE_BACKEND", &cfg.Store.Backend)
	str("SETPLAYER_STORE_DIR", &cfg.Store.Dir)
	str("SETPLAYER_PLANS_DIR", &cfg.Plans.Dir)
	num("SETPLAYER_SESSION_DEFAULT_REST_SECONDS", &cfg.Session.DefaultRestSeconds)
}

func (c *Config) defaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendPostgres
	}
	if c.Store.Backend == BackendSQLite && c.Store.Dir == "" {
		c.Store.Dir = "data"
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = "setplayer"
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("store.backend %q: want %s or %s", c.Store.Backend, BackendPostgres, BackendSQLite)
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	s := c.Session
	if s.DefaultRestSeconds < 0 || s.CountdownCueSeconds < 0 || s.TickIntervalMillis < 0 {
		return fmt.Errorf("session timings must not be negative")
	}
	return nil
}
