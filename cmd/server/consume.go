package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/queue"
)

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume-notifications",
		Short: "Deliver queued payment notifications",
		Long: `Consume the notification queue and hand each message to the sender.

The sender appends one line per notification to NOTIFICATION_LOG.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := setupLogging(cfg, "convention-desk-notifier")
			defer closer.Close()
			metrics.Register()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := &queue.Consumer{
				URL:    cfg.RabbitURL,
				Queue:  cfg.NotifyQueue,
				Sender: &queue.LogSender{Path: cfg.NotificationLog},
				Logger: logger,
			}
			return c.Run(ctx)
		},
	}
}
