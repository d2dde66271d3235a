package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/newsletter-crawler/internal/api"
	"github.com/JakeFAU/newsletter-crawler/internal/config"
	"github.com/JakeFAU/newsletter-crawler/internal/extract"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve article extraction over HTTP",
		Long: `Starts an HTTP server whose POST /html_to_fulltext?url=... endpoint returns
the extracted plain text of the document sent as the request body.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, *cfgFile)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(extract.New(logger.Named("extract")), api.Options{
				Port:           cfg.Server.Port,
				RequestTimeout: cfg.Server.RequestTimeout(),
				MaxBodyBytes:   int64(cfg.Crawl.MaxBodyBytes),
			}, logger.Named("api"))
			return server.Serve(ctx)
		},
	}
	cmd.Flags().Int("port", config.DefaultServerPort, "listen port")
	return cmd
}
