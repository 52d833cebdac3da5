package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-crawler/internal/crawler"
	"github.com/JakeFAU/article-crawler/internal/downstream"
	"github.com/JakeFAU/article-crawler/internal/metrics"
	"github.com/JakeFAU/article-crawler/internal/publisher"
	"github.com/JakeFAU/article-crawler/internal/storage"
)

const defaultPrefix = "articles"

// ArchiveConfig wires the optional sinks. A nil Store or Publisher skips
// that step.
type ArchiveConfig struct {
	Store     storage.BlobStore
	Publisher publisher.Publisher
	Topic     string
	Prefix    string
	SessionID string
}

// Archiver stores each present record and announces it downstream.
type Archiver struct {
	cfg    ArchiveConfig
	logger *zap.Logger
	now    func() time.Time
}

// ArchiveSummary counts what happened to a batch.
type ArchiveSummary struct {
	Stored    int
	Published int
	Failed    int
}

// NewArchiver builds an Archiver.
func NewArchiver(cfg ArchiveConfig, logger *zap.Logger) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{cfg: cfg, logger: logger.Named("archive"), now: time.Now}
}

// Enabled reports whether any sink is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && (a.cfg.Store != nil || a.cfg.Publisher != nil)
}

// ObjectPath returns <prefix>/<YYYY-MM-DD>/<record-id>.json for a record
// crawled at crawledAt.
func (a *Archiver) ObjectPath(record *crawler.ArticleRecord, crawledAt time.Time) string {
	return path.Join(a.cfg.Prefix, crawledAt.UTC().Format(time.DateOnly), downstream.RecordID(record)+".json")
}

// Archive handles every non-nil record. Failures are logged per record and
// counted; they never abort the batch.
func (a *Archiver) Archive(ctx context.Context, records []*crawler.ArticleRecord) ArchiveSummary {
	var summary ArchiveSummary
	if !a.Enabled() {
		return summary
	}
	crawledAt := a.now()
	for _, record := range records {
		if record == nil {
			continue
		}
		if ctx.Err() != nil {
			a.logger.Warn("archive interrupted", zap.Error(ctx.Err()))
			summary.Failed++
			continue
		}
		logger := a.logger.With(zap.String("url", record.URL))

		uri, err := a.store(ctx, record, crawledAt)
		if err != nil {
			logger.Warn("archive store failed", zap.Error(err))
			metrics.ObserveArchive("store", "error")
			summary.Failed++
			continue
		}
		if uri != "" {
			metrics.ObserveArchive("store", "ok")
			summary.Stored++
		}

		if a.cfg.Publisher == nil {
			continue
		}
		handoff := downstream.NewHandoff(a.cfg.SessionID, record, uri, crawledAt)
		id, err := a.cfg.Publisher.Publish(ctx, a.cfg.Topic, handoff)
		if err != nil {
			logger.Warn("handoff publish failed", zap.Error(err))
			metrics.ObserveArchive("publish", "error")
			summary.Failed++
			continue
		}
		metrics.ObserveArchive("publish", "ok")
		summary.Published++
		logger.Debug("handoff published", zap.String("message_id", id), zap.String("archive_uri", uri))
	}
	a.logger.Info("archive finished",
		zap.Int("stored", summary.Stored),
		zap.Int("published", summary.Published),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func (a *Archiver) store(ctx context.Context, record *crawler.ArticleRecord, crawledAt time.Time) (string, error) {
	if a.cfg.Store == nil {
		return "", nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	uri, err := a.cfg.Store.PutObject(ctx, a.ObjectPath(record, crawledAt), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}
