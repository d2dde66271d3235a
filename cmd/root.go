// Package cmd defines and implements the CLI commands for the newsletter-crawler executable.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsletter-crawler/internal/config"
	"github.com/JakeFAU/newsletter-crawler/internal/logging"
)

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "newsletter-crawler",
		Short: "Archives newsletters and the articles they link to.",
		Long: `newsletter-crawler walks newsletter archive pages, stores every issue it
finds, and extracts the full text of each linked article into a database.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML)")
	flags.String("log-level", "INFO", "log level name or multiple of ten (10=DEBUG ... 50=CRITICAL)")
	flags.Bool("dev-logs", true, "human-readable colored logs instead of JSON")
	flags.String("db-driver", config.DriverSQLite, "entity store: sqlite or postgres")
	flags.String("db-dsn", config.DefaultSQLitePath, "SQLite path or Postgres connection string")

	cmd.AddCommand(newCrawlCmd(&cfgFile))
	cmd.AddCommand(newServeCmd(&cfgFile))

	return cmd
}

// loadConfig resolves configuration for cmd and builds its logger.
func loadConfig(cmd *cobra.Command, cfgFile string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(level, cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
