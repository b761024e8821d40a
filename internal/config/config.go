// Package config provides configuration loading for glowroutine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvHTTPAddr    = "GLOWROUTINE_HTTP_ADDR"
	EnvDatabaseURL = "DATABASE_URL"
	EnvNATSURL     = "NATS_URL"
	EnvLogLevel    = "LOG_LEVEL"
	EnvCatalogPath = "GLOWROUTINE_CATALOG"
	EnvProfilePath = "GLOWROUTINE_PROFILE"
)

// Config is the complete configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Session  SessionConfig  `yaml:"session"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	// ProfilePath seeds the in-memory store (ignored with a database).
	ProfilePath string `yaml:"profile_path"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects Postgres. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// NATSConfig configures event publishing. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	ClientName    string `yaml:"client_name"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is off, normal or verbose.
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	// File receives log output; empty or "stderr" logs to the console.
	File string `yaml:"file"`
}

// CatalogConfig points at an external catalog file. Empty uses the
// bundled catalog.
type CatalogConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// SessionConfig tunes running sessions.
type SessionConfig struct {
	// TickInterval is the length of one countdown second.
	TickInterval time.Duration `yaml:"tick_interval"`
	// ShowPending includes ghost steps for unconfirmed products.
	ShowPending bool `yaml:"show_pending"`
}

// WatcherConfig tunes the deferred product watcher.
type WatcherConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		NATS: NATSConfig{
			SubjectPrefix: "glowroutine",
			ClientName:    "glowroutine",
		},
		Log: LogConfig{
			Level:  "normal",
			Format: "text",
		},
		Session: SessionConfig{
			TickInterval: time.Second,
			ShowPending:  true,
		},
		Watcher: WatcherConfig{
			Interval: time.Minute,
		},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
	if v := getenv(EnvDatabaseURL); v != "" {
		c.Database.URL = v
	}
	if v := getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvCatalogPath); v != "" {
		c.Catalog.Path = v
	}
	if v := getenv(EnvProfilePath); v != "" {
		c.ProfilePath = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	if c.Session.TickInterval <= 0 {
		errs = append(errs, errors.New("session.tick_interval must be positive"))
	}
	if c.Watcher.Interval <= 0 {
		errs = append(errs, errors.New("watcher.interval must be positive"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Catalog.Watch && c.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.watch needs catalog.path"))
	}
	return errors.Join(errs...)
}
