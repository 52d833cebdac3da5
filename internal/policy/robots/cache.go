// Package robots resolves and caches robots.txt policy per Origin.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/article-crawler/internal/crawler"
	"github.com/JakeFAU/article-crawler/internal/metrics"
)

const (
	robotsTxtPath      = "/robots.txt"
	genericAgent       = "*"
	maxRobotsBodyBytes = 512 * 1024
	defaultTimeout     = 10 * time.Second
)

// Policy is the resolved robots policy of one Origin. It is immutable.
type Policy struct {
	Origin     crawler.Origin
	CrawlDelay time.Duration

	group    *robotstxt.Group
	allowAll bool
}

// AllowAll reports whether the policy permits every path, which is the case
// when robots.txt could not be fetched or parsed.
func (p *Policy) AllowAll() bool {
	return p == nil || p.allowAll || p.group == nil
}

// Allows tests a request URI (path plus query) against the generic agent group.
func (p *Policy) Allows(requestURI string) bool {
	if p.AllowAll() {
		return true
	}
	return p.group.Test(requestURI)
}

func allowAllPolicy(origin crawler.Origin) *Policy {
	return &Policy{Origin: origin, allowAll: true}
}

// Config controls robots fetching.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Transport is the session's pooled transport; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// Cache resolves each Origin's policy at most once and shares it between
// concurrent callers.
type Cache struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu       sync.RWMutex
	policies map[crawler.Origin]*Policy
	group    singleflight.Group
	fetches  atomic.Int64
}

// NewCache builds an empty policy cache.
func NewCache(cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	metrics.Init()
	return &Cache{
		client: &http.Client{
			Transport: &handshakeRetryTransport{base: base},
			Timeout:   cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		logger:    logger.Named("robots"),
		policies:  make(map[crawler.Origin]*Policy),
	}
}

// Resolve returns the policy for origin, fetching robots.txt on first use.
// It never fails: every fetch problem degrades to an allow-all policy.
func (c *Cache) Resolve(ctx context.Context, origin crawler.Origin) *Policy {
	if policy, ok := c.cached(origin); ok {
		return policy
	}

	v, _, _ := c.group.Do(origin.String(), func() (any, error) {
		if policy, ok := c.cached(origin); ok {
			return policy, nil
		}
		policy, cacheable := c.fetch(ctx, origin)
		if cacheable {
			c.mu.Lock()
			c.policies[origin] = policy
			c.mu.Unlock()
		}
		return policy, nil
	})
	policy, ok := v.(*Policy)
	if !ok {
		return allowAllPolicy(origin)
	}
	return policy
}

// Allowed reports whether rawURL may be fetched under its Origin's policy.
// URLs that are not absolute are never allowed.
func (c *Cache) Allowed(ctx context.Context, rawURL string) bool {
	origin, err := crawler.OriginOf(rawURL)
	if err != nil {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return c.Resolve(ctx, origin).Allows(parsed.RequestURI())
}

// DelayFor returns the cached crawl-delay for origin without fetching.
func (c *Cache) DelayFor(origin crawler.Origin) time.Duration {
	policy, ok := c.cached(origin)
	if !ok {
		return 0
	}
	return policy.CrawlDelay
}

// Fetches returns the number of robots.txt fetches performed.
func (c *Cache) Fetches() int64 {
	return c.fetches.Load()
}

// Close discards every cached policy.
func (c *Cache) Close(context.Context) error {
	c.mu.Lock()
	c.policies = make(map[crawler.Origin]*Policy)
	c.mu.Unlock()
	return nil
}

func (c *Cache) cached(origin crawler.Origin) (*Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	policy, ok := c.policies[origin]
	return policy, ok
}

// fetch downloads and parses robots.txt. The second result is false when the
// failure came from the caller's own cancellation and must not be cached.
func (c *Cache) fetch(ctx context.Context, origin crawler.Origin) (*Policy, bool) {
	c.fetches.Add(1)
	logger := c.logger.With(zap.String("origin", origin.String()))

	body, status, err := c.download(ctx, origin.String()+robotsTxtPath)
	if err != nil {
		metrics.ObserveRobotsFetch("error")
		if ctx.Err() != nil {
			logger.Debug("robots fetch canceled", zap.Error(err))
			return allowAllPolicy(origin), false
		}
		logger.Info("robots fetch failed; allowing all", zap.Error(err))
		return allowAllPolicy(origin), true
	}
	metrics.ObserveRobotsFetch(strconv.Itoa(status))

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		logger.Debug("robots unavailable; allowing all", zap.Int("status", status))
		return allowAllPolicy(origin), true
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logger.Info("robots parse failed; allowing all", zap.Error(err))
		return allowAllPolicy(origin), true
	}

	group := data.FindGroup(genericAgent)
	policy := &Policy{Origin: origin, group: group}
	if group != nil {
		policy.CrawlDelay = group.CrawlDelay
	}
	logger.Debug("robots policy resolved", zap.Duration("crawl_delay", policy.CrawlDelay))
	return policy, true
}

func (c *Cache) download(ctx context.Context, robotsURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create robots request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read robots body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// AllowAll is the policy cache used when robots handling is switched off.
type AllowAll struct{}

// Allowed always returns true.
func (AllowAll) Allowed(context.Context, string) bool { return true }

// DelayFor always returns zero.
func (AllowAll) DelayFor(crawler.Origin) time.Duration { return 0 }

var (
	_ crawler.PolicyCache = (*Cache)(nil)
	_ crawler.PolicyCache = AllowAll{}
	_ crawler.Resource    = (*Cache)(nil)
)
