package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cartloom/bulkimport/internal/config"
	"github.com/cartloom/bulkimport/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "bulkimport",
	Short: "Bulk import workflow for the admin catalog",
	Long: `bulkimport drives CSV product and user imports through the admin
catalog backend: parse, validate, correct, process.

Run it as a long-lived API server (serve) or as a one-shot headless
import (run).`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(templateCmd)
}

// loadConfig loads .env and the environment-driven configuration, and
// initializes logging. Shared by all subcommands.
func loadConfig() (*config.Config, error) {
	// Overload overwrites existing env vars with .env values when present.
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
