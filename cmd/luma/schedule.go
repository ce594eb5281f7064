package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lumahq/luma/internal/lua"
	"github.com/lumahq/luma/internal/schedule"
)

var (
	scheduleCron       string
	scheduleFile       string
	scheduleTimeout    int
	scheduleInitialRun bool
	scheduleBail       int
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run a script on a cron schedule",
	Long: `Run a script every time a five-field cron expression fires. The process
keeps running until interrupted, or until --bail consecutive-or-not
errors have accumulated.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "five-field cron expression (required)")
	scheduleCmd.Flags().StringVar(&scheduleFile, "file", "", "script path, stdin when empty or -")
	scheduleCmd.Flags().IntVar(&scheduleTimeout, "timeout", 30, "timeout in seconds")
	scheduleCmd.Flags().BoolVar(&scheduleInitialRun, "initial-run", false, "run once immediately before the first tick")
	scheduleCmd.Flags().IntVar(&scheduleBail, "bail", 0, "stop after this many failed runs, 0 never stops")

	_ = scheduleCmd.MarkFlagRequired("cron")
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	name, source, err := readScript(scheduleFile)
	if err != nil {
		return err
	}

	opts := []lua.Option{
		lua.WithName(name),
		lua.WithTimeout(resolveTimeout(cmd, cfg, scheduleTimeout)),
		lua.WithLogger(logger),
	}
	if cfg.Store.Path != "" {
		st, err := openStore(cfg.Store.Path, cfg.Store.RunMigrations)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, lua.WithStore(st))
	}

	eval, err := lua.NewEvaluation(source, opts...)
	if err != nil {
		return err
	}

	sched, err := schedule.New(scheduleCron, eval,
		schedule.WithInitialRun(scheduleInitialRun),
		schedule.WithBail(scheduleBail),
		schedule.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("scheduling script", "name", name, "cron", scheduleCron)
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
