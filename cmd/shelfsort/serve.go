package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ecomstack/shelfsort/internal/config"
	"github.com/ecomstack/shelfsort/internal/scheduler"
	"github.com/ecomstack/shelfsort/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline daemon: scheduled jobs plus the review API",
		Long: `Run shelfsort as a long-lived process. The scheduler syncs the hierarchy
and scans for products nightly, drains the queue and applies accepted
assignments on an interval, and the review API exposes queue state,
suggestion review, and manual job triggers over HTTP.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "review API listen address (default :8090)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	deps, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	sched, err := scheduler.New(deps.engine, scheduler.Config{
		SyncSpec:   viper.GetString("schedule.sync"),
		DrainSpec:  viper.GetString("schedule.drain"),
		ApplySpec:  viper.GetString("schedule.apply"),
		ScanWindow: config.ScanWindow(),
	}, slog.Default())
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = viper.GetString("server.addr")
	}

	srv := server.New(deps.store, deps.engine, server.Config{
		Addr:          addr,
		MinReadyCount: minReadyCount(),
		ScanWindow:    config.ScanWindow(),
	}, slog.Default())

	sched.Start()
	defer sched.Stop()

	return srv.ListenAndServe(ctx)
}
