package downstream

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-crawler/internal/crawler"
)

func TestSummarizeBoundsRunes(t *testing.T) {
	assert.Equal(t, "short", Summarize("short", 10))

	text := strings.Repeat("héllo wörld ", 100)
	got := Summarize(text, 50)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 50)
	assert.True(t, strings.HasPrefix(text, got))
	assert.False(t, strings.HasSuffix(got, "wö"), "cut should land on a word boundary")

	unbroken := strings.Repeat("x", 100)
	assert.Equal(t, 40, utf8.RuneCountInString(Summarize(unbroken, 40)))
}

func TestClusterItemsSkipsAbsentEntries(t *testing.T) {
	records := []*crawler.ArticleRecord{
		{URL: "https://a.example/1", Text: "alpha"},
		nil,
		{URL: "https://b.example/2", Text: "beta"},
	}
	items := ClusterItems(records, 0)
	require.Len(t, items, 2)
	assert.Equal(t, RecordID(records[0]), items[0].ID)
	assert.Equal(t, "beta", items[1].Summary)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestNewHandoff(t *testing.T) {
	published := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	record := &crawler.ArticleRecord{URL: "https://a.example/1", Title: "T", Text: "body", Published: &published}
	crawledAt := time.Date(2024, 3, 6, 0, 0, 0, 0, time.FixedZone("X", 3600))

	h := NewHandoff("session-1", record, "file:///tmp/a.json", crawledAt)
	assert.Equal(t, RecordID(record), h.RecordID)
	assert.Equal(t, h.RecordID, h.Item.ID)
	assert.Equal(t, "session-1", h.SessionID)
	assert.Equal(t, "T", h.Title)
	assert.Equal(t, time.UTC, h.CrawledAt.Location())
	assert.Same(t, record, h.Record)
}
