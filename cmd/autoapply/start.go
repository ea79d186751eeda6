package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/autoapply/internal/api"
)

const shutdownTimeout = 10 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the orchestrator daemon",
	Long:  "Start the scheduler daemon and, when api.listen is set, the control API; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"users", len(cfg.Users),
		"sources", cfg.Sources.EnabledCount(),
		"daily_times", cfg.Schedule.DailyTimes,
		"max_per_day", cfg.Limits.MaxJobsPerDay,
		"max_per_hour", cfg.Limits.MaxApplicationsPerHour,
		"storage", cfg.Storage.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer svc.close(logger)

	if err := svc.orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	var srv *api.Server
	if cfg.API.Listen != "" {
		srv = api.NewServer(svc.orch, logger)
		go func() {
			if err := srv.Listen(cfg.API.Listen); err != nil {
				logger.Error("control api stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if srv != nil {
		if err := srv.Shutdown(shutdownTimeout); err != nil {
			logger.Error("control api shutdown failed", "error", err)
		}
	}
	if err := svc.orch.Stop(); err != nil {
		logger.Error("orchestrator stop failed", "error", err)
	}

	logger.Info("goodbye")
	return nil
}
