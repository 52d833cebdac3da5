// Package seeds reads candidate article URLs from RSS and Atom feeds.
package seeds

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const defaultMaxPerFeed = 50

// Config controls feed reading.
type Config struct {
	UserAgent  string
	MaxPerFeed int
	// MaxAge drops items published longer ago than this. Items without a
	// parsable date are kept. Zero disables the filter.
	MaxAge  time.Duration
	Timeout time.Duration
}

// FeedSource turns feeds into ordered lists of item links.
type FeedSource struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewFeedSource builds a FeedSource. A nil client uses a default client
// bounded by cfg.Timeout.
func NewFeedSource(cfg Config, client *http.Client, logger *zap.Logger) *FeedSource {
	if cfg.MaxPerFeed <= 0 {
		cfg.MaxPerFeed = defaultMaxPerFeed
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedSource{cfg: cfg, client: client, logger: logger.Named("seeds"), now: time.Now}
}

// Links fetches one feed and returns its item links in feed order, capped at
// MaxPerFeed.
func (s *FeedSource) Links(ctx context.Context, feedURL string) ([]string, error) {
	parser := gofeed.NewParser()
	parser.Client = s.client
	parser.UserAgent = s.cfg.UserAgent

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	links := make([]string, 0, min(len(feed.Items), s.cfg.MaxPerFeed))
	for _, item := range feed.Items {
		if len(links) >= s.cfg.MaxPerFeed {
			break
		}
		if s.stale(item) {
			continue
		}
		if link := extractLink(item); link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}

// Collect reads every feed in order and concatenates their links. A feed
// that fails is logged and skipped; only cancellation aborts the walk.
func (s *FeedSource) Collect(ctx context.Context, feedURLs []string) ([]string, error) {
	var all []string
	for _, feedURL := range feedURLs {
		if err := ctx.Err(); err != nil {
			return all, fmt.Errorf("collect feeds: %w", err)
		}
		links, err := s.Links(ctx, feedURL)
		if err != nil {
			s.logger.Warn("feed skipped", zap.String("feed", feedURL), zap.Error(err))
			continue
		}
		s.logger.Debug("feed read", zap.String("feed", feedURL), zap.Int("links", len(links)))
		all = append(all, links...)
	}
	return all, nil
}

func (s *FeedSource) stale(item *gofeed.Item) bool {
	if s.cfg.MaxAge <= 0 {
		return false
	}
	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil {
		return false
	}
	return s.now().Sub(*published) > s.cfg.MaxAge
}

// extractLink prefers the item link and falls back to the GUID. Only
// http(s) values count.
func extractLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); strings.HasPrefix(link, "http") {
		return link
	}
	if guid := strings.TrimSpace(item.GUID); strings.HasPrefix(guid, "http") {
		return guid
	}
	return ""
}
