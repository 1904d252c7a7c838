package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/convention-desk/internal/app"
	"github.com/iliyamo/convention-desk/internal/config"
	"github.com/iliyamo/convention-desk/internal/database"
	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/notify"
	"github.com/iliyamo/convention-desk/internal/queue"
	"github.com/iliyamo/convention-desk/internal/staff"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API: payment webhooks, intake, pricing and the staff desk.

Notifications are published to RabbitMQ when RABBITMQ_URL is set and
written straight to NOTIFICATION_LOG otherwise.  SIGHUP reloads the staff
directory; SIGINT or SIGTERM shut down gracefully.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer := setupLogging(cfg, "convention-desk")
	defer closer.Close()
	metrics.Register()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(dbOptions(cfg))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		applied, err := database.Migrate(ctx, db, cfg.DBDriver)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", "count", len(applied), "files", applied)
	}

	dir, err := staff.Open(cfg.StaffDirectory, logger)
	if err != nil {
		return err
	}
	dir.ReloadOnSignal(ctx)

	rdb := config.NewRedisClient(cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	var pub notify.Publisher
	if cfg.RabbitURL != "" {
		p := queue.NewPublisher(cfg.RabbitURL, cfg.NotifyQueue)
		defer p.Close()
		pub = p
	} else {
		logger.Warn("RABBITMQ_URL not set, notifications go straight to the log file", "path", cfg.NotificationLog)
		pub = queue.Direct{Sender: &queue.LogSender{Path: cfg.NotificationLog}}
	}
	notifier := notify.New(pub, notify.Options{
		Buffer:  cfg.NotifyBuffer,
		Workers: cfg.NotifyWorkers,
		Logger:  logger,
	})
	notifier.Start()

	a, err := app.New(cfg, app.Deps{DB: db, Staff: dir, Redis: rdb, Notifier: notifier, Logger: logger})
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver)
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := notifier.Close(shutdownCtx); err != nil {
		logger.Error("notification queue did not drain", "error", err)
	}
	return nil
}
