// Luma runs sandboxed Lua scripts with a persistent store.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "luma",
	Short: "Run sandboxed Lua scripts with a persistent store",
	Long: `Luma evaluates small Lua scripts inside a restricted environment with a
persistent key-value store, outbound HTTP, JSON and crypto primitives.
Scripts read their input from stdin or the request body and can be
evaluated once, served over HTTP, run on a cron schedule or exposed
as MCP tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "enable debug logging (env DEBUG)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "SQLite store path, in-memory when empty (env STORE_PATH)")
	rootCmd.PersistentFlags().BoolVar(&runMigrations, "run-migrations", false, "run store migrations on open (env RUN_MIGRATIONS)")

	rootCmd.AddCommand(checkCmd, evalCmd, serveCmd, scheduleCmd, storeCmd, mcpCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
