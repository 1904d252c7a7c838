package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/convention-desk/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := setupLogging(cfg, "convention-desk-migrate")
			defer closer.Close()

			db, err := database.Open(dbOptions(cfg))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			applied, err := database.Migrate(cmd.Context(), db, cfg.DBDriver)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "count", len(applied), "files", applied)
			for _, f := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}
