// Package app initializes and holds the long-lived services of one crawl
// run, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-crawler/internal/config"
	"github.com/JakeFAU/article-crawler/internal/crawler"
	"github.com/JakeFAU/article-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/article-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/article-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/article-crawler/internal/output"
	"github.com/JakeFAU/article-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/article-crawler/internal/policy/robots"
	"github.com/JakeFAU/article-crawler/internal/publisher"
	memorypublisher "github.com/JakeFAU/article-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/article-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/article-crawler/internal/seeds"
	"github.com/JakeFAU/article-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/article-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/article-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/article-crawler/internal/storage/memory"
)

// App holds the services shared by one crawl run.
type App struct {
	logger   *zap.Logger
	session  *crawler.Session
	archiver *output.Archiver
	feeds    *seeds.FeedSource

	// released after the session, newest first
	closers []crawler.Resource
}

// newRenderedFetcher builds the rendered strategy. Tests replace it.
var newRenderedFetcher = func(cfg headless.Config) (crawler.Fetcher, error) {
	return headless.NewChromedp(cfg)
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Session returns the crawl session.
func (a *App) Session() *crawler.Session { return a.session }

// Archiver returns the record archiver; it is a no-op when no sink is
// configured.
func (a *App) Archiver() *output.Archiver { return a.archiver }

// Feeds returns the feed seed source.
func (a *App) Feeds() *seeds.FeedSource { return a.feeds }

// New wires every service from cfg. It fails fast when a configured sink
// cannot be opened; a missing browser only disables the rendered strategy.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := collyfetcher.NewTransport(collyfetcher.TransportConfig{
		MaxIdleConns:        cfg.HTTP.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnsPerHost,
		Timeout:             cfg.HTTP.Timeout,
	})

	var policy crawler.PolicyCache = robots.AllowAll{}
	resources := []crawler.Resource{
		crawler.ResourceFunc(func(context.Context) error {
			transport.CloseIdleConnections()
			return nil
		}),
	}
	if cfg.Robots.Respect {
		cache := robots.NewCache(robots.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.Robots.Timeout,
			Transport: transport,
		}, logger)
		policy = cache
		resources = append(resources, cache)
	} else {
		logger.Warn("robots.txt enforcement disabled")
	}

	limiter := ratelimit.New(ratelimit.Config{OriginQPS: cfg.Crawler.OriginQPS})
	resources = append(resources, limiter)

	steps := []crawler.StrategyStep{{
		Name: crawler.StrategyLight,
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:    cfg.Crawler.UserAgent,
			Timeout:      cfg.HTTP.Timeout,
			MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		}, transport),
	}}
	if cfg.Headless.Enabled {
		steps = append(steps, crawler.StrategyStep{
			Name:    crawler.StrategyRendered,
			Fetcher: renderedFetcher(cfg, logger),
		})
	} else {
		logger.Info("rendered strategy disabled")
	}

	engine := crawler.NewCrawler(
		policy,
		limiter,
		steps,
		extract.New(logger),
		crawler.NewLinearRetryPolicy(cfg.Crawler.MaxRetries, cfg.Crawler.BackoffUnit),
		logger.Named("crawler"),
	)
	session, err := crawler.NewSession(crawler.SessionConfig{
		Concurrency:   cfg.Crawler.Concurrency,
		ShutdownGrace: cfg.Crawler.ShutdownGrace,
	}, engine, logger.Named("session"), resources...)
	if err != nil {
		transport.CloseIdleConnections()
		return nil, fmt.Errorf("create session: %w", err)
	}

	a := &App{
		logger:  logger,
		session: session,
		feeds: seeds.NewFeedSource(seeds.Config{
			UserAgent:  cfg.Crawler.UserAgent,
			MaxPerFeed: cfg.Seeds.MaxPerFeed,
			MaxAge:     cfg.Seeds.MaxAge,
			Timeout:    cfg.HTTP.Timeout,
		}, &http.Client{Transport: transport, Timeout: cfg.HTTP.Timeout}, logger),
	}

	store, err := a.blobStore(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}
	pub, err := a.publisher(ctx, cfg, session.ID())
	if err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}
	a.archiver = output.NewArchiver(output.ArchiveConfig{
		Store:     store,
		Publisher: pub,
		Topic:     cfg.PubSub.TopicName,
		Prefix:    cfg.Archive.Prefix,
		SessionID: session.ID(),
	}, logger)

	logger.Info("application services initialized",
		zap.String("session_id", session.ID()),
		zap.Bool("robots", cfg.Robots.Respect),
		zap.Bool("rendered", cfg.Headless.Enabled),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("pubsub", cfg.PubSub.Provider),
	)
	return a, nil
}

func renderedFetcher(cfg *config.Config, logger *zap.Logger) crawler.Fetcher {
	fetcher, err := newRenderedFetcher(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Crawler.UserAgent,
		ExecPath:          cfg.Headless.ExecPath,
		NavigationTimeout: cfg.Headless.NavTimeout,
		Settle:            cfg.Headless.Settle,
	})
	if err != nil {
		// reported once by the crawler on first use
		logger.Debug("headless fetcher init failed", zap.Error(err))
		return headless.NewUnavailable(err.Error())
	}
	return fetcher
}

func (a *App) blobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.Archive.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return memorystorage.NewBlobStore(), nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, nil
	case "gcs":
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

func (a *App) publisher(ctx context.Context, cfg *config.Config, sessionID string) (publisher.Publisher, error) {
	switch cfg.PubSub.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return memorypublisher.New(), nil
	case "gcp":
		pub, err := pubsubpublisher.Open(ctx, pubsubpublisher.Config{
			ProjectID: cfg.PubSub.ProjectID,
			TopicName: cfg.PubSub.TopicName,
		})
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub)
		return pub.WithAttributes(map[string]string{"session_id": sessionID}), nil
	default:
		return nil, fmt.Errorf("unknown pubsub provider: %s", cfg.PubSub.Provider)
	}
}

// Close releases the session and every sink client. It is safe to call more
// than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.session != nil {
		if err := a.session.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	closers := a.closers
	a.closers = nil
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
