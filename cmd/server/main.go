package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvclean/internal/config"
	"github.com/JonMunkholm/csvclean/internal/core"
	"github.com/JonMunkholm/csvclean/internal/history"
	"github.com/JonMunkholm/csvclean/internal/logging"
	"github.com/JonMunkholm/csvclean/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"history_driver", cfg.History.Driver,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"convert_to_utf8", cfg.Normalize.ConvertToUTF8,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("full configuration", "config", cfg.String())

	ctx := context.Background()
	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		slog.Error("failed to open history store", "driver", cfg.History.Driver, "error", err)
		os.Exit(1)
	}
	slog.Info("history store ready", "driver", cfg.History.Driver)

	service, err := core.NewService(cfg, store)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		store.Close()
		os.Exit(1)
	}
	defer service.Close()

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartRetentionScheduler(jobCtx, core.RetentionConfig{
		MaxAge:   cfg.History.RetentionWindow(),
		Interval: cfg.History.PurgeInterval,
	})

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		defer close(idle)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server error", "error", err)
		cancelJobs()
		service.Close()
		os.Exit(1)
	}
	<-idle
	slog.Info("server stopped")
}
