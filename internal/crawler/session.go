package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	iduuid "github.com/JakeFAU/article-crawler/internal/id/uuid"
)

const (
	defaultConcurrency   = 4
	defaultShutdownGrace = 5 * time.Second
)

// SessionConfig controls batch execution.
type SessionConfig struct {
	Concurrency   int
	ShutdownGrace time.Duration
}

// Session runs a Crawler over batches of URLs and owns the resources shared by
// every crawl in the batch. Close releases them.
type Session struct {
	id      string
	cfg     SessionConfig
	crawler *Crawler
	logger  *zap.Logger

	mu        sync.Mutex
	closed    bool
	resources []Resource
	closeOnce sync.Once
	closeErr  error
}

// NewSession builds a session around crawler. Resources are released in
// reverse order on Close.
func NewSession(cfg SessionConfig, crawler *Crawler, logger *zap.Logger, resources ...Resource) (*Session, error) {
	if crawler == nil {
		return nil, errors.New("crawler is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ShutdownGrace < 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id, err := iduuid.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	return &Session{
		id:        id,
		cfg:       cfg,
		crawler:   crawler,
		logger:    logger.With(zap.String("session_id", id)),
		resources: resources,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Crawl processes urls with bounded concurrency. The result has one slot per
// input URL in input order; URLs that produced no article hold nil. On
// cancellation dispatch stops, in-flight crawls get up to ShutdownGrace to
// unwind, and the partial result is returned with the context error.
func (s *Session) Crawl(ctx context.Context, urls []string) ([]*ArticleRecord, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	results := make([]*ArticleRecord, len(urls))
	if len(urls) == 0 {
		return results, nil
	}

	var resultsMu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	started := time.Now()
	s.logger.Info("crawl batch starting",
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, rawURL := range urls {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				record, _ := s.crawler.Crawl(ctx, rawURL)
				if record != nil {
					resultsMu.Lock()
					results[i] = record
					resultsMu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		grace := time.NewTimer(s.cfg.ShutdownGrace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			s.logger.Warn("shutdown grace elapsed with crawls still in flight",
				zap.Duration("grace", s.cfg.ShutdownGrace),
			)
		}
	}

	resultsMu.Lock()
	snapshot := make([]*ArticleRecord, len(results))
	copy(snapshot, results)
	resultsMu.Unlock()

	present := 0
	for _, record := range snapshot {
		if record != nil {
			present++
		}
	}
	s.logger.Info("crawl batch finished",
		zap.Int("urls", len(urls)),
		zap.Int("articles", present),
		zap.Duration("elapsed", time.Since(started)),
	)

	if err := ctx.Err(); err != nil {
		return snapshot, fmt.Errorf("crawl batch: %w", err)
	}
	return snapshot, nil
}

// Close releases every registered resource once, newest first. Later calls
// return the first call's result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		resources := s.resources
		s.resources = nil
		s.mu.Unlock()

		var errs []error
		for i := len(resources) - 1; i >= 0; i-- {
			if err := resources[i].Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Warn("session teardown reported errors", zap.Error(s.closeErr))
			return
		}
		s.logger.Debug("session closed")
	})
	return s.closeErr
}
