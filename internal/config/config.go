// Package config handles configuration loading from environment variables and
// TOML files. CLI flags are applied on top by the command layer, so effective
// precedence is flags > env > file > defaults.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the config file consulted when no explicit path is given.
const DefaultFile = "luma.toml"

// Config holds all settings for the luma runtime.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Script  ScriptConfig  `toml:"script"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP front-end settings.
type ServerConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	MaxWorkers int    `toml:"max_workers"` // concurrent evaluations (0 = NumCPU)
}

// StoreConfig holds store settings.
type StoreConfig struct {
	Path          string `toml:"path"` // SQLite file path; empty = in-memory
	RunMigrations bool   `toml:"run_migrations"`
}

// ScriptConfig holds evaluation settings.
type ScriptConfig struct {
	Timeout Duration `toml:"timeout"` // per-invocation deadline (0 = unbounded)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
	Format string `toml:"format"` // "text", "json"
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "127.0.0.1",
			Port:       3000,
			MaxWorkers: runtime.NumCPU(),
		},
		Store: StoreConfig{
			Path:          "",
			RunMigrations: false,
		},
		Script: ScriptConfig{
			Timeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the given TOML file and applies LUMA_*
// environment overrides. An empty path falls back to DefaultFile, which may
// be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.loadTOML(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("LUMA_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("LUMA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("LUMA_MAX_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			c.Server.MaxWorkers = workers
		}
	}
	if v := os.Getenv("LUMA_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("LUMA_RUN_MIGRATIONS"); v != "" {
		c.Store.RunMigrations = v == "true" || v == "1"
	}
	if v := os.Getenv("LUMA_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Script.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("LUMA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LUMA_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Addr returns the server listen address as host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LogLevel maps the configured level name to a slog.Level.
func (c *Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
