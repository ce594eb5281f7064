package main

import (
	"github.com/spf13/cobra"

	"github.com/lumahq/luma/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the evaluator and store over MCP stdio",
	Long: `Expose script evaluation and the store as Model Context Protocol tools
on stdin/stdout. Logs go to stderr so they never corrupt the protocol
stream.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	st, err := openStore(cfg.Store.Path, cfg.Store.RunMigrations)
	if err != nil {
		return err
	}
	defer st.Close()

	return mcp.New(st, mcp.WithLogger(logger)).ServeStdio()
}
