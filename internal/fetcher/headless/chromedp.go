// Package headless contains the rendered fetch strategy, which executes
// JavaScript in a throwaway headless browser per fetch.
package headless

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/article-crawler/internal/crawler"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettle            = 500 * time.Millisecond
)

// browserCandidates are probed on $PATH when no executable is configured.
var browserCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	ExecPath          string
	NavigationTimeout time.Duration
	Settle            time.Duration
}

// Fetcher implements crawler.Fetcher using chromedp. Every fetch launches its
// own browser process with a fresh profile and tears it down before
// returning.
type Fetcher struct {
	cfg   Config
	slots *semaphore.Weighted
}

// LookupBrowser resolves the browser executable, preferring execPath when set.
// It fails with crawler.ErrCapabilityUnavailable when nothing usable exists.
func LookupBrowser(execPath string) (string, error) {
	if execPath != "" {
		path, err := exec.LookPath(execPath)
		if err != nil {
			return "", fmt.Errorf("%w: browser %q: %w", crawler.ErrCapabilityUnavailable, execPath, err)
		}
		return path, nil
	}
	for _, name := range browserCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chrome or chromium executable on PATH", crawler.ErrCapabilityUnavailable)
}

// NewChromedp creates a headless fetcher backed by chromedp. It fails with
// crawler.ErrCapabilityUnavailable when no browser can be found.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = defaultSettle
	}
	path, err := LookupBrowser(cfg.ExecPath)
	if err != nil {
		return nil, err
	}
	cfg.ExecPath = path
	return &Fetcher{
		cfg:   cfg,
		slots: semaphore.NewWeighted(int64(cfg.MaxParallel)),
	}, nil
}

// Fetch navigates with a headless browser and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	if err := f.slots.Acquire(ctx, 1); err != nil {
		return crawler.Page{}, fmt.Errorf("headless slot wait: %w", err)
	}
	defer f.slots.Release(1)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocatorOptions()...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, rawURL)
	if err != nil {
		return crawler.Page{}, classify(ctx, err)
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(rawURL, finalURL)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusUnavailableForLegalReasons:
		return crawler.Page{}, fmt.Errorf("%w: status %d", crawler.ErrBlocked, status)
	}

	return crawler.Page{
		URL:        rawURL,
		FinalURL:   responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}, nil
}

func (f *Fetcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(f.cfg.ExecPath),
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
}

func (f *Fetcher) runHeadless(ctx context.Context, rawURL string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.cfg.Settle > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.Settle))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// classify maps a browser failure onto the crawler error taxonomy.
func classify(parent context.Context, err error) error {
	if ctxErr := parent.Err(); ctxErr != nil {
		return fmt.Errorf("rendered fetch: %w", ctxErr)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", crawler.ErrCapabilityUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", crawler.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", crawler.ErrRender, err)
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// the first document response is the navigation; later ones are frames
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, m.headers.Clone(), m.url
	m.mu.RUnlock()

	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, url
}

var _ crawler.Fetcher = (*Fetcher)(nil)
