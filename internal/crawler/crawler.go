package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-crawler/internal/metrics"
)

// StrategyStep pairs a strategy name with its Fetcher. The Crawler tries steps
// in order, moving on only when the previous one is exhausted.
type StrategyStep struct {
	Name    Strategy
	Fetcher Fetcher
}

// Crawler runs the per-URL state machine:
// CHECK_POLICY → DELAY → LIGHT_ATTEMPT(n) → RENDERED_ATTEMPT(n) → DONE.
type Crawler struct {
	policy    PolicyCache
	pacer     Pacer
	steps     []StrategyStep
	extractor Extractor
	retry     *LinearRetryPolicy
	pauser    pauseController
	logger    *zap.Logger

	// latched once a strategy reports ErrCapabilityUnavailable
	unavailable map[Strategy]*atomic.Bool
}

// NewCrawler wires a Crawler. A nil pacer disables pacing; a nil logger is
// replaced with a no-op logger.
func NewCrawler(
	policy PolicyCache,
	pacer Pacer,
	steps []StrategyStep,
	extractor Extractor,
	retry *LinearRetryPolicy,
	logger *zap.Logger,
) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry == nil {
		retry = NewLinearRetryPolicy(defaultMaxAttempts, defaultBackoffUnit)
	}
	if pacer == nil {
		pacer = noPacer{}
	}
	metrics.Init()

	unavailable := make(map[Strategy]*atomic.Bool, len(steps))
	for _, step := range steps {
		unavailable[step.Name] = new(atomic.Bool)
	}
	return &Crawler{
		policy:      policy,
		pacer:       pacer,
		steps:       steps,
		extractor:   extractor,
		retry:       retry,
		pauser:      &timerPauseController{},
		logger:      logger,
		unavailable: unavailable,
	}
}

// Crawl processes one URL to completion. It never returns an error: a nil
// record together with the Outcome describes why nothing was produced.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) (*ArticleRecord, Outcome) {
	record, outcome := c.crawl(ctx, rawURL)
	metrics.ObserveURL(string(outcome))
	return record, outcome
}

func (c *Crawler) crawl(ctx context.Context, rawURL string) (*ArticleRecord, Outcome) {
	logger := c.logger.With(zap.String("url", rawURL))

	origin, err := OriginOf(rawURL)
	if err != nil {
		logger.Warn("skipping invalid url", zap.Error(err))
		return nil, OutcomeInvalidURL
	}
	logger = logger.With(zap.String("origin", origin.String()))

	if ctx.Err() != nil {
		return nil, OutcomeCanceled
	}
	if c.policy != nil && !c.policy.Allowed(ctx, rawURL) {
		logger.Info("skipping url disallowed by robots policy")
		return nil, OutcomePolicyBlocked
	}
	var delay time.Duration
	if c.policy != nil {
		delay = c.policy.DelayFor(origin)
	}

	lastErr := errors.New("no fetch strategies configured")
	for _, step := range c.steps {
		if c.unavailable[step.Name].Load() {
			logger.Debug("strategy unavailable; skipping", zap.String("strategy", string(step.Name)))
			return nil, OutcomeCapabilityUnavailable
		}
		if prober, ok := step.Fetcher.(Prober); ok {
			if err := prober.Probe(); err != nil {
				c.markUnavailable(logger, step.Name, err)
				return nil, OutcomeCapabilityUnavailable
			}
		}

		record, err := c.runStrategy(ctx, logger, step, rawURL, origin, delay)
		if err == nil {
			logger.Info("article extracted",
				zap.String("strategy", string(step.Name)),
				zap.Int("text_len", len(record.Text)),
			)
			return record, OutcomeArticle
		}
		lastErr = err

		switch OutcomeOf(err) {
		case FetchCanceled:
			return nil, OutcomeCanceled
		case FetchCapabilityUnavailable:
			c.markUnavailable(logger, step.Name, err)
			return nil, OutcomeCapabilityUnavailable
		case FetchBlocked:
			logger.Info("strategy blocked by site", zap.String("strategy", string(step.Name)), zap.Error(err))
		default:
			logger.Warn("strategy exhausted",
				zap.String("strategy", string(step.Name)),
				zap.Int("attempts", c.retry.MaxAttempts()),
				zap.Error(err),
			)
		}
	}

	if OutcomeOf(lastErr) == FetchBlocked {
		return nil, OutcomeBlocked
	}
	logger.Warn("all strategies failed", zap.Error(lastErr))
	return nil, OutcomeExhausted
}

// runStrategy is the single bounded-retry routine shared by every strategy.
// The attempt counter starts at one for each strategy.
func (c *Crawler) runStrategy(
	ctx context.Context,
	logger *zap.Logger,
	step StrategyStep,
	rawURL string,
	origin Origin,
	delay time.Duration,
) (*ArticleRecord, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s attempt %d: %w", step.Name, attempt, err)
		}

		record, err := c.attempt(ctx, step, rawURL, origin, delay)
		metrics.ObserveAttempt(string(step.Name), string(OutcomeOf(err)))
		if err == nil {
			return record, nil
		}
		if !c.retry.ShouldRetry(err, attempt) {
			return nil, err
		}

		wait := c.retry.Backoff(attempt)
		logger.Debug("attempt failed; backing off",
			zap.String("strategy", string(step.Name)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := c.pauser.Pause(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *Crawler) attempt(
	ctx context.Context,
	step StrategyStep,
	rawURL string,
	origin Origin,
	delay time.Duration,
) (*ArticleRecord, error) {
	waitStart := time.Now()
	release, err := c.pacer.Acquire(ctx, origin, delay)
	if err != nil {
		return nil, fmt.Errorf("pace %s: %w", origin, err)
	}
	metrics.ObservePolitenessWait(time.Since(waitStart))

	fetchStart := time.Now()
	page, err := step.Fetcher.Fetch(ctx, rawURL)
	release()
	metrics.ObserveFetchDuration(string(step.Name), time.Since(fetchStart))
	if err != nil {
		return nil, err
	}

	record, err := c.extractor.Extract(rawURL, page.Body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(record.Text) == "" {
		return nil, fmt.Errorf("%w: empty article text", ErrParse)
	}
	if record.Authors == nil {
		record.Authors = []string{}
	}
	return &record, nil
}

// markUnavailable latches a strategy as unavailable and logs the first
// occurrence only.
func (c *Crawler) markUnavailable(logger *zap.Logger, name Strategy, err error) {
	flag, ok := c.unavailable[name]
	if !ok {
		return
	}
	if flag.CompareAndSwap(false, true) {
		logger.Warn("fetch strategy unavailable in this deployment; skipping it for the rest of the session",
			zap.String("strategy", string(name)),
			zap.Error(err),
		)
		return
	}
	logger.Debug("fetch strategy unavailable", zap.String("strategy", string(name)))
}

type noPacer struct{}

func (noPacer) Acquire(context.Context, Origin, time.Duration) (func(), error) {
	return func() {}, nil
}
