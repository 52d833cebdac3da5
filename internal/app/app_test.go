package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-crawler/internal/config"
	"github.com/JakeFAU/article-crawler/internal/crawler"
	"github.com/JakeFAU/article-crawler/internal/fetcher/headless"
)

const articlePage = `<!doctype html>
<html><head><title>Harbour Reopens</title>
<meta name="author" content="Mara Quinn"></head>
<body><article>
<h1>Harbour Reopens</h1>
<p>The harbour reopened to commercial traffic on Monday after a week of repairs to
the outer breakwater, which was damaged during the storms earlier this month.</p>
<p>Port officials said ferries would return to their normal timetable by the end
of the week, though some freight berths will stay closed until inspections finish.</p>
<p>Local businesses welcomed the news, saying the closure had cut visitor numbers
sharply during what is usually one of the busiest periods of the season.</p>
</article></body></html>`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Crawler.MaxRetries = 2
	cfg.Crawler.BackoffUnit = 0
	cfg.Crawler.ShutdownGrace = time.Second
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Robots.Timeout = 2 * time.Second
	return cfg
}

func withoutBrowser(t *testing.T) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	orig := newRenderedFetcher
	newRenderedFetcher = func(headless.Config) (crawler.Fetcher, error) {
		calls.Add(1)
		return nil, errors.New("no browser in test")
	}
	t.Cleanup(func() { newRenderedFetcher = orig })
	return &calls
}

func newSiteServer(t *testing.T, pageHits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/news/harbour", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/private/", func(w http.ResponseWriter, _ *http.Request) {
		pageHits.Add(1)
		_, _ = w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		pageHits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewCrawlsEndToEnd(t *testing.T) {
	calls := withoutBrowser(t)
	var hits atomic.Int32
	srv := newSiteServer(t, &hits)

	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, a.Archiver().Enabled())
	assert.NotEmpty(t, a.Session().ID())

	records, err := a.Session().Crawl(context.Background(), []string{
		srv.URL + "/news/harbour",
		srv.URL + "/private/page",
		srv.URL + "/broken",
		"not a url",
	})
	require.NoError(t, err)
	require.Len(t, records, 4)

	require.NotNil(t, records[0])
	assert.Equal(t, "Harbour Reopens", records[0].Title)
	assert.Contains(t, records[0].Text, "outer breakwater")
	assert.Equal(t, []string{"Mara Quinn"}, records[0].Authors)
	assert.Nil(t, records[1], "disallowed by robots")
	assert.Nil(t, records[2], "exhausted")
	assert.Nil(t, records[3], "invalid url")
	assert.EqualValues(t, 2, hits.Load(), "only the broken page is fetched, max_retries times")
}

func TestNewIgnoresRobotsWhenDisabled(t *testing.T) {
	withoutBrowser(t)
	var hits atomic.Int32
	srv := newSiteServer(t, &hits)

	cfg := testConfig(t)
	cfg.Robots.Respect = false
	cfg.Headless.Enabled = false
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	records, err := a.Session().Crawl(context.Background(), []string{srv.URL + "/private/page"})
	require.NoError(t, err)
	require.NotNil(t, records[0])
	assert.EqualValues(t, 1, hits.Load())
}

func TestNewArchivesToLocalStore(t *testing.T) {
	withoutBrowser(t)
	var hits atomic.Int32
	srv := newSiteServer(t, &hits)

	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Archive.Provider = "local"
	cfg.Archive.BaseDir = dir
	cfg.PubSub.Provider = "memory"
	cfg.PubSub.TopicName = "articles"

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	require.True(t, a.Archiver().Enabled())

	records, err := a.Session().Crawl(context.Background(), []string{srv.URL + "/news/harbour"})
	require.NoError(t, err)
	summary := a.Archiver().Archive(context.Background(), records)
	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 1, summary.Published)

	matches, err := filepath.Glob(filepath.Join(dir, "articles", "*", "*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Harbour Reopens")
}

func TestNewRejectsBadArchive(t *testing.T) {
	withoutBrowser(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	cfg := testConfig(t)
	cfg.Archive.Provider = "local"
	cfg.Archive.BaseDir = file
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init local archive")
}

func TestCloseIsIdempotent(t *testing.T) {
	withoutBrowser(t)
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))

	_, err = a.Session().Crawl(context.Background(), []string{"https://example.com/"})
	require.ErrorIs(t, err, crawler.ErrSessionClosed)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	require.Error(t, err)
}
