package main // entry point for the convention desk service and its maintenance commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/convention-desk/internal/config"
	"github.com/iliyamo/convention-desk/internal/database"
	"github.com/iliyamo/convention-desk/internal/logging"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "convention-desk",
		Short:         "Payment reconciliation and ticket desk for the convention",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(consumeCmd())
	rootCmd.AddCommand(hashPINCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file named by --env-file and then the
// environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	config.LoadDotEnv(envFile)
	return config.LoadFrom(os.LookupEnv, os.Environ())
}

func setupLogging(cfg config.Config, service string) (*slog.Logger, io.Closer) {
	return logging.Setup(logging.Options{
		Service:    service,
		Env:        cfg.Env,
		Level:      logging.ParseLevel(cfg.LogLevel),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
}

func dbOptions(cfg config.Config) database.Options {
	return database.Options{
		Driver: cfg.DBDriver,
		User:   cfg.DBUser,
		Pass:   cfg.DBPass,
		Host:   cfg.DBHost,
		Port:   cfg.DBPort,
		Name:   cfg.DBName,
		Path:   cfg.DBPath,
	}
}
