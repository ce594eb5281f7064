package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "luma.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.MaxWorkers < 1 {
		t.Errorf("max workers = %d, want >= 1", cfg.Server.MaxWorkers)
	}
	if cfg.Store.Path != "" {
		t.Errorf("store path = %q, want in-memory default", cfg.Store.Path)
	}
	if got := cfg.Script.Timeout.Duration(); got != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", got)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %s/%s, want info/text", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8080
max_workers = 4

[store]
path = "data.db"
run_migrations = true

[script]
timeout = "5s"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("server = %s:%d, want 0.0.0.0:8080", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.MaxWorkers != 4 {
		t.Errorf("max workers = %d, want 4", cfg.Server.MaxWorkers)
	}
	if cfg.Store.Path != "data.db" || !cfg.Store.RunMigrations {
		t.Errorf("store = %+v, want data.db with migrations", cfg.Store)
	}
	if got := cfg.Script.Timeout.Duration(); got != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", got)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %s/%s, want debug/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadPartialTOML(t *testing.T) {
	path := writeConfig(t, `
[store]
path = "only.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path != "only.db" {
		t.Errorf("store path = %q, want only.db", cfg.Store.Path)
	}
	// Unset sections keep their defaults.
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want default 3000", cfg.Server.Port)
	}
	if got := cfg.Script.Timeout.Duration(); got != 30*time.Second {
		t.Errorf("timeout = %v, want default 30s", got)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
[script]
timeout = "not a duration"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080

[store]
path = "file.db"
`)

	t.Setenv("LUMA_PORT", "9090")
	t.Setenv("LUMA_STORE_PATH", "env.db")
	t.Setenv("LUMA_TIMEOUT", "2s")
	t.Setenv("LUMA_RUN_MIGRATIONS", "1")
	t.Setenv("LUMA_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want env override 9090", cfg.Server.Port)
	}
	if cfg.Store.Path != "env.db" {
		t.Errorf("store path = %q, want env override env.db", cfg.Store.Path)
	}
	if got := cfg.Script.Timeout.Duration(); got != 2*time.Second {
		t.Errorf("timeout = %v, want env override 2s", got)
	}
	if !cfg.Store.RunMigrations {
		t.Error("run_migrations = false, want env override true")
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("level = %q, want env override error", cfg.Logging.Level)
	}
}

func TestDurationString(t *testing.T) {
	d := Duration(90 * time.Second)
	if got := d.String(); got != "1m30s" {
		t.Errorf("String() = %q, want 1m30s", got)
	}
}

func TestAddr(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Addr(); got != "127.0.0.1:3000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:3000", got)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{Logging: LoggingConfig{Level: tt.level}}
		if got := cfg.LogLevel(); got != tt.want {
			t.Errorf("LogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
