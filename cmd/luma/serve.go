package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumahq/luma/internal/lua"
	"github.com/lumahq/luma/internal/server"
)

var (
	serveBind    string
	serveFile    string
	serveTimeout int
	serveWatch   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a script over HTTP",
	Long: `Serve a script over HTTP. Each POST to / evaluates the script with the
request body as input; GET /ws upgrades to a WebSocket where every text
message is evaluated the same way. Prometheus metrics are exposed on
/metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "127.0.0.1:3000", "listen address")
	serveCmd.Flags().StringVar(&serveFile, "file", "", "script path, stdin when empty or -")
	serveCmd.Flags().IntVar(&serveTimeout, "timeout", 30, "timeout in seconds")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the script when the file changes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	name, source, err := readScript(serveFile)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Store.Path, cfg.Store.RunMigrations)
	if err != nil {
		return err
	}
	defer st.Close()

	timeout := resolveTimeout(cmd, cfg, serveTimeout)
	build := func(source string) (*lua.Evaluation, error) {
		return lua.NewEvaluation(source,
			lua.WithName(name),
			lua.WithStore(st),
			lua.WithTimeout(timeout),
			lua.WithLogger(logger),
		)
	}
	eval, err := build(source)
	if err != nil {
		return err
	}

	srv := server.New(eval,
		server.WithLogger(logger),
		server.WithMaxWorkers(cfg.Server.MaxWorkers),
	)

	if serveWatch {
		if serveFile == "" || serveFile == "-" {
			return fmt.Errorf("--watch requires --file")
		}
		watcher, err := lua.NewWatcher(serveFile, func(source string) {
			next, err := build(source)
			if err != nil {
				logger.Error("script reload failed", "file", serveFile, "error", err)
				return
			}
			srv.SetScript(next)
			logger.Info("script reloaded", "file", serveFile)
		}, lua.WithWatcherLogger(logger))
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	bind := serveBind
	if !cmd.Flags().Changed("bind") {
		bind = cfg.Addr()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Start(bind)
	}()
	logger.Info("serving script", "name", name, "bind", bind)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
