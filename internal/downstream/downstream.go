// Package downstream defines the consumers of crawled articles that live
// outside this module: classification, clustering and message handoff.
package downstream

import (
	"context"
	"time"

	"github.com/JakeFAU/article-crawler/internal/crawler"
	iduuid "github.com/JakeFAU/article-crawler/internal/id/uuid"
)

// DefaultSummaryRunes bounds ClusterItem summaries.
const DefaultSummaryRunes = 500

// Classifier assigns one of labels to a piece of text.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) (string, error)
}

// Clusterer groups related items.
type Clusterer interface {
	Cluster(ctx context.Context, items []ClusterItem) ([]Group, error)
}

// ClusterItem is the unit handed to a Clusterer.
type ClusterItem struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// Group is one cluster produced by a Clusterer.
type Group struct {
	Label   string   `json:"label"`
	ItemIDs []string `json:"item_ids"`
}

// Handoff is the message published for every archived record.
type Handoff struct {
	RecordID   string                 `json:"record_id"`
	SessionID  string                 `json:"session_id"`
	URL        string                 `json:"url"`
	Title      string                 `json:"title,omitempty"`
	Published  *time.Time             `json:"published,omitempty"`
	ArchiveURI string                 `json:"archive_uri,omitempty"`
	Item       ClusterItem            `json:"item"`
	CrawledAt  time.Time              `json:"crawled_at"`
	Record     *crawler.ArticleRecord `json:"-"`
}

// RecordID returns the stable identifier of a record.
func RecordID(record *crawler.ArticleRecord) string {
	return iduuid.RecordID(record.URL)
}

// Summarize returns at most maxRunes runes of text, cut at a word boundary
// when one is close to the limit.
func Summarize(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultSummaryRunes
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	cut := maxRunes
	for i := maxRunes; i > maxRunes*4/5; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			cut = i
			break
		}
	}
	return string(runes[:cut])
}

// ClusterItems builds cluster input from a batch result, skipping absent
// entries and keeping input order.
func ClusterItems(records []*crawler.ArticleRecord, maxRunes int) []ClusterItem {
	items := make([]ClusterItem, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		items = append(items, ClusterItem{
			ID:      RecordID(record),
			Summary: Summarize(record.Text, maxRunes),
		})
	}
	return items
}

// NewHandoff builds the handoff message for one record.
func NewHandoff(sessionID string, record *crawler.ArticleRecord, archiveURI string, crawledAt time.Time) Handoff {
	id := RecordID(record)
	return Handoff{
		RecordID:   id,
		SessionID:  sessionID,
		URL:        record.URL,
		Title:      record.Title,
		Published:  record.Published,
		ArchiveURI: archiveURI,
		Item:       ClusterItem{ID: id, Summary: Summarize(record.Text, DefaultSummaryRunes)},
		CrawledAt:  crawledAt.UTC(),
		Record:     record,
	}
}
