// Package cmd defines and implements the CLI commands for the article-crawler
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-crawler/internal/app"
	"github.com/JakeFAU/article-crawler/internal/config"
	"github.com/JakeFAU/article-crawler/internal/crawler"
	"github.com/JakeFAU/article-crawler/internal/output"
	"github.com/JakeFAU/article-crawler/internal/seeds"
)

// App is what commands need from the application container.
type App interface {
	Session() *crawler.Session
	Archiver() *output.Archiver
	Feeds() *seeds.FeedSource
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "article-crawler",
		Short: "A polite, resilient article fetcher.",
		Long: `article-crawler fetches news articles while honouring robots.txt and
crawl-delay, retries transient failures with backoff, falls back to a headless
browser only when a plain fetch is exhausted, and prints the extracted
articles as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// crawl; partial results are still written.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "article-crawler:", err)
		stop()
		os.Exit(1)
	}
}
