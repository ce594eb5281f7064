package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumahq/luma/internal/config"
	"github.com/lumahq/luma/internal/store"
)

// Persistent flags shared by every command.
var (
	debugMode     bool
	configPath    string
	storePath     string
	runMigrations bool
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// loadConfig reads the TOML config (plus LUMA_* env overrides) and applies
// the CLI flags on top. Flags win over their bare env fallbacks, which win
// over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path = storePath
	} else if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if cmd.Flags().Changed("run-migrations") {
		cfg.Store.RunMigrations = runMigrations
	} else if envBool("RUN_MIGRATIONS") {
		cfg.Store.RunMigrations = true
	}
	return cfg, nil
}

// setupLogger rebuilds the process logger from config. The debug flag and
// the DEBUG env var force debug level regardless of the configured one.
func setupLogger(cfg *config.Config) {
	level := cfg.LogLevel()
	if debugMode || envBool("DEBUG") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// readScript loads the script from file, or from stdin when file is empty
// or "-". The returned name feeds error positions.
func readScript(file string) (name, source string, err error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return "(stdin)", string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", "", err
	}
	return file, string(data), nil
}

// openStore opens the configured store. An empty path means an in-memory
// store, which is always migrated since it starts from nothing; a file
// store is migrated only when asked.
func openStore(path string, migrate bool) (*store.Store, error) {
	st, err := store.New(path, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if path == "" {
		logger.Warn("no store path specified, values will be lost when the process exits")
		migrate = true
	}
	if migrate {
		if err := st.Migrate(context.Background()); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

// resolveTimeout prefers an explicitly set --timeout flag over the config.
func resolveTimeout(cmd *cobra.Command, cfg *config.Config, seconds int) time.Duration {
	if cmd.Flags().Changed("timeout") {
		return time.Duration(seconds) * time.Second
	}
	return cfg.Script.Timeout.Duration()
}

func envBool(name string) bool {
	v := os.Getenv(name)
	return v == "true" || v == "1"
}
