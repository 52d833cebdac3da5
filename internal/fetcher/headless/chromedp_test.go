package headless

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/article-crawler/internal/crawler"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
}

func TestLookupBrowserMissingExecutable(t *testing.T) {
	t.Parallel()

	_, err := LookupBrowser("/nonexistent/bin/chrome-for-tests")
	if !errors.Is(err, crawler.ErrCapabilityUnavailable) {
		t.Fatalf("expected capability unavailable, got %v", err)
	}
	if _, err := NewChromedp(Config{ExecPath: "/nonexistent/bin/chrome-for-tests"}); !errors.Is(err, crawler.ErrCapabilityUnavailable) {
		t.Fatalf("expected constructor to report capability unavailable, got %v", err)
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  403,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	// a later frame document does not overwrite the navigation response
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://ads.example/frame"},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://example.com/app.js"},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 403 || headers.Get("X-Request-ID") != "abc" || url != "https://example.com/rendered" {
		t.Fatalf("unexpected snapshot values: status=%d headers=%v url=%s", status, headers, url)
	}

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
	_, _, url = meta.snapshotWithFallbacks("https://req", "")
	if url != "https://req" {
		t.Fatalf("expected request url fallback, got %s", url)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	missing := &exec.Error{Name: "chrome", Err: exec.ErrNotFound}
	if err := classify(ctx, missing); !errors.Is(err, crawler.ErrCapabilityUnavailable) {
		t.Fatalf("expected capability unavailable, got %v", err)
	}
	if err := classify(ctx, context.DeadlineExceeded); !errors.Is(err, crawler.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if err := classify(ctx, errors.New("page crashed")); !errors.Is(err, crawler.ErrRender) {
		t.Fatalf("expected render error, got %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if got := crawler.OutcomeOf(classify(canceled, errors.New("x"))); got != crawler.FetchCanceled {
		t.Fatalf("expected canceled outcome, got %s", got)
	}
}

func TestUnavailableFetcher(t *testing.T) {
	t.Parallel()

	_, err := NewUnavailable("").Fetch(context.Background(), "https://example.com")
	if !errors.Is(err, crawler.ErrCapabilityUnavailable) {
		t.Fatalf("expected capability unavailable, got %v", err)
	}
	_, err = NewUnavailable("disabled by config").Fetch(context.Background(), "https://example.com")
	if err == nil || !strings.Contains(err.Error(), "disabled by config") {
		t.Fatalf("expected reason in error, got %v", err)
	}
	if err := NewUnavailable("no browser").Probe(); !errors.Is(err, crawler.ErrCapabilityUnavailable) {
		t.Fatalf("expected probe to report capability unavailable, got %v", err)
	}
}

func newBrowserFetcher(t *testing.T) *Fetcher {
	t.Helper()
	if _, err := LookupBrowser(""); err != nil {
		t.Skip("chrome not available; skipping headless fetch test")
	}
	fetcher, err := NewChromedp(Config{MaxParallel: 1, NavigationTimeout: 20 * time.Second, Settle: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new chromedp: %v", err)
	}
	return fetcher
}

func TestFetchRendersJavaScript(t *testing.T) {
	fetcher := newBrowserFetcher(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="app"></div>
<script>document.getElementById("app").innerText = "rendered by script";</script>
</body></html>`))
	}))
	defer srv.Close()

	page, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !page.Rendered || !strings.Contains(string(page.Body), "rendered by script") {
		t.Fatalf("expected rendered body, got %q", page.Body)
	}
}

func TestFetchReportsBlockedStatus(t *testing.T) {
	fetcher := newBrowserFetcher(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><body>denied</body></html>"))
	}))
	defer srv.Close()

	_, err := fetcher.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, crawler.ErrBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}
