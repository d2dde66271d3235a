package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsletter-crawler/internal/blocklist"
	"github.com/JakeFAU/newsletter-crawler/internal/clock/system"
	"github.com/JakeFAU/newsletter-crawler/internal/config"
	"github.com/JakeFAU/newsletter-crawler/internal/console"
	"github.com/JakeFAU/newsletter-crawler/internal/crawler"
	"github.com/JakeFAU/newsletter-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/newsletter-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/newsletter-crawler/internal/listfile"
	"github.com/JakeFAU/newsletter-crawler/internal/metrics"
	"github.com/JakeFAU/newsletter-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/newsletter-crawler/internal/storage/postgres"
	"github.com/JakeFAU/newsletter-crawler/internal/storage/sqlite"
)

func newCrawlCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl newsletter archives",
		Long: `Crawls each archive seed in order: the archive page, every newsletter issue
it links to, and every article linked from those issues. Seeds come from
--seeds and from the arguments. Pages already stored are not fetched again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, *cfgFile, args)
		},
	}

	flags := cmd.Flags()
	flags.BoolP("interactive", "i", false, "ask before every request")
	flags.Int64("requests-limit", 0, "stop after this many requests (0 = unlimited)")
	flags.BoolP("verbose", "v", false, "print the title and URL of every article")
	flags.Bool("debug", false, "pause and retry once on unexpected errors")
	flags.Int("timeout", config.DefaultTimeoutSeconds, "request timeout in seconds")
	flags.Bool("auto-blocklist", false, "add hosts answering 403 to the blocklist")
	flags.Int("article-quota", config.DefaultArticleQuota, "articles per archive before moving on (0 = unlimited)")
	flags.String("seeds", "", "file of archive URLs, one per line")
	flags.String("blocklist", "", "file of blocked URL substrings, one per line")
	flags.String("user-agent", config.DefaultUserAgent, "User-Agent header")
	flags.Float64("per-host-rps", 0, "per-host request rate (0 = unlimited)")
	flags.String("metrics-addr", "", "serve Prometheus /metrics on this address during the run")

	return cmd
}

func runCrawl(cmd *cobra.Command, cfgFile string, args []string) error {
	cfg, logger, err := loadConfig(cmd, cfgFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	seeds, err := collectSeeds(cfg.Crawl.SeedsFile, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close store", zap.Error(cerr))
		}
	}()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	if cfg.Crawl.MetricsAddr != "" {
		metricsSrv, err := metrics.Listen(cfg.Crawl.MetricsAddr)
		if err != nil {
			return err
		}
		logger.Info("metrics listening", zap.String("addr", metricsSrv.Addr()))
		defer shutdownMetrics(metricsSrv, logger)
	}

	blocked, err := loadBlocklist(cfg.Crawl.BlocklistFile)
	if err != nil {
		return err
	}

	prompter := console.New(cmd.InOrStdin(), cmd.ErrOrStderr())
	counters := crawler.NewCounters()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawl.UserAgent,
		Timeout:       cfg.Crawl.FetchTimeout(),
		MaxBodyBytes:  cfg.Crawl.MaxBodyBytes,
		Interactive:   cfg.Crawl.Interactive,
		AutoBlocklist: cfg.Crawl.AutoBlocklist,
	}, counters,
		collyfetcher.WithLogger(logger.Named("fetcher")),
		collyfetcher.WithPrompter(prompter),
		collyfetcher.WithBlocklist(blocked),
		collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			PerHostRPS: cfg.Crawl.PerHostRPS,
			Burst:      cfg.Crawl.Burst,
		})),
	)

	entities := crawler.NewEntities(store, fetcher, extract.New(logger.Named("extract")), system.New(), logger.Named("entities"))
	entities.OnOutcome(func(tier string, outcome crawler.Outcome) {
		metrics.ObserveEntity(tier, outcome.String())
	})

	engine := crawler.NewEngine(entities, counters, blocked, prompter, crawler.Options{
		RequestLimit: cfg.Crawl.RequestsLimit,
		ArticleQuota: cfg.Crawl.ArticleQuota,
		Debug:        cfg.Crawl.Debug,
		Verbose:      cfg.Crawl.Verbose,
		Out:          cmd.OutOrStdout(),
	}, logger.Named("engine"))

	logger.Info("crawl started", zap.Int("seeds", len(seeds)), zap.String("db_driver", cfg.DB.Driver))
	summary, runErr := engine.Run(ctx, seeds)
	renderSummary(cmd.OutOrStdout(), summary)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("crawl interrupted")
		}
		return fmt.Errorf("crawl: %w", runErr)
	}
	logger.Info("crawl finished",
		zap.Int64("requests_attempted", summary.Requests.Total),
		zap.Int64("requests_successful", summary.Requests.Successful),
	)
	return nil
}

func shutdownMetrics(srv *metrics.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics shutdown", zap.Error(err))
	}
}

func collectSeeds(path string, args []string) ([]string, error) {
	var seeds []string
	if path != "" {
		fromFile, err := listfile.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read seeds: %w", err)
		}
		seeds = append(seeds, fromFile...)
	}
	seeds = append(seeds, args...)
	if len(seeds) == 0 {
		return nil, errors.New("no seeds: pass archive URLs as arguments or with --seeds")
	}
	return seeds, nil
}

func loadBlocklist(path string) (*blocklist.List, error) {
	if path == "" {
		return blocklist.New(nil), nil
	}
	return blocklist.Load(path)
}

func openStore(ctx context.Context, cfg config.DBConfig) (crawler.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

func renderSummary(out io.Writer, summary crawler.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRows([]table.Row{
		{"archives seen", summary.ArchivesSeen},
		{"newsletters seen", summary.NewslettersSeen},
		{"articles seen", summary.ArticlesSeen},
		{"articles created", summary.ArticlesCreated},
		{"requests attempted", summary.Requests.Total},
		{"requests successful", summary.Requests.Successful},
	})
	if summary.Stopped {
		t.AppendRow(table.Row{"stopped", "request limit reached"})
	}
	t.Render()
}
