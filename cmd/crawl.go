package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-crawler/internal/config"
	"github.com/JakeFAU/article-crawler/internal/logging"
	"github.com/JakeFAU/article-crawler/internal/metrics"
	"github.com/JakeFAU/article-crawler/internal/output"
)

// errNoURLs reports an invocation with nothing to crawl.
var errNoURLs = errors.New("no URLs to crawl: pass URLs as arguments or use --feed")

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [flags] URL...",
		Short: "Fetch articles and print them as a JSON array",
		Long: `Fetches every URL, plus the item links of any --feed, and prints one JSON
array aligned with the input order. URLs that yield no article are null.`,
		RunE: runCrawlCommand,
	}
	cmd.Flags().StringArray("feed", nil, "RSS or Atom feed whose item links are crawled (repeatable)")
	cmd.Flags().Int("concurrency", 4, "maximum URLs processed at once")
	cmd.Flags().Int("max-retries", 3, "attempts per fetch strategy")
	cmd.Flags().Bool("no-render", false, "never fall back to a headless browser")
	cmd.Flags().Bool("pretty", true, "indent the JSON output")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flagFeeds, err := cmd.Flags().GetStringArray("feed")
	if err != nil {
		return fmt.Errorf("read --feed: %w", err)
	}
	feeds := append(append([]string{}, flagFeeds...), cfg.Seeds.Feeds...)
	if len(args) == 0 && len(feeds) == 0 {
		return errNoURLs
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	if cfg.Metrics.ListenAddr != "" {
		srv, err := metrics.Start(cfg.Metrics.ListenAddr, logger)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			if cerr := srv.Close(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn("metrics server shutdown failed", zap.Error(cerr))
			}
		}()
	}

	appInstance, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := appInstance.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("failed to close application services", zap.Error(cerr))
		}
	}()

	urls := append([]string{}, args...)
	if len(feeds) > 0 {
		links, err := appInstance.Feeds().Collect(ctx, feeds)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("collect feed links: %w", err)
		}
		urls = append(urls, links...)
	}
	if len(urls) == 0 {
		return errNoURLs
	}

	records, err := appInstance.Session().Crawl(ctx, urls)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Warn("crawl interrupted; writing partial results")
	default:
		return fmt.Errorf("crawl: %w", err)
	}

	if err := (output.JSONWriter{Pretty: cfg.Output.Pretty}).Write(cmd.OutOrStdout(), records); err != nil {
		return err
	}

	if archiver := appInstance.Archiver(); archiver.Enabled() {
		archiveCtx := ctx
		if ctx.Err() != nil {
			// interrupted: archive what was produced within the shutdown grace
			var cancel context.CancelFunc
			archiveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), archiveGrace(cfg))
			defer cancel()
		}
		archiver.Archive(archiveCtx, records)
	}
	return nil
}

func archiveGrace(cfg *config.Config) time.Duration {
	if cfg.Crawler.ShutdownGrace > 0 {
		return cfg.Crawler.ShutdownGrace
	}
	return time.Second
}
