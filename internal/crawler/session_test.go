package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// urlFetcher fails for URLs listed in failing and blocks until ctx is done for
// URLs listed in hang.
type urlFetcher struct {
	failing map[string]bool
	hang    map[string]bool
	active  atomic.Int32
	peak    atomic.Int32
}

func (f *urlFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.hang[rawURL] {
		<-ctx.Done()
		return Page{}, ctx.Err()
	}
	time.Sleep(5 * time.Millisecond)
	if f.failing[rawURL] {
		return Page{}, fmt.Errorf("%w: refused", ErrNetwork)
	}
	return Page{URL: rawURL, Body: []byte("text of " + rawURL)}, nil
}

func newSessionUnderTest(t *testing.T, f Fetcher, concurrency int, resources ...Resource) *Session {
	t.Helper()
	c := NewCrawler(&staticPolicy{}, nil, []StrategyStep{{Name: StrategyLight, Fetcher: f}}, textExtractor{}, NewLinearRetryPolicy(2, 0), nil)
	s, err := NewSession(SessionConfig{Concurrency: concurrency, ShutdownGrace: time.Second}, c, nil, resources...)
	require.NoError(t, err)
	return s
}

func TestSessionCrawlPreservesInputOrder(t *testing.T) {
	urls := []string{
		"https://a.example/1",
		"https://b.example/2",
		"not a url",
		"https://c.example/3",
		"https://d.example/4",
	}
	f := &urlFetcher{failing: map[string]bool{"https://c.example/3": true}}
	s := newSessionUnderTest(t, f, 3)

	results, err := s.Crawl(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, results, len(urls))

	assert.Equal(t, "https://a.example/1", results[0].URL)
	assert.Equal(t, "https://b.example/2", results[1].URL)
	assert.Nil(t, results[2])
	assert.Nil(t, results[3])
	assert.Equal(t, "text of https://d.example/4", results[4].Text)
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
}

func TestSessionCrawlEmptyBatch(t *testing.T) {
	s := newSessionUnderTest(t, &urlFetcher{}, 2)
	results, err := s.Crawl(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSessionCrawlCancellationReturnsPartialResults(t *testing.T) {
	urls := []string{"https://fast.example/1", "https://slow.example/2"}
	f := &urlFetcher{hang: map[string]bool{"https://slow.example/2": true}}
	s := newSessionUnderTest(t, f, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	results, err := s.Crawl(ctx, urls)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	require.NotNil(t, results[0])
	assert.Nil(t, results[1])
}

func TestSessionCloseIsIdempotentAndReverseOrdered(t *testing.T) {
	var mu sync.Mutex
	var order []string
	closer := func(name string) Resource {
		return ResourceFunc(func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}
	s := newSessionUnderTest(t, &urlFetcher{}, 1, closer("transport"), closer("policy"))

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, []string{"policy", "transport"}, order)

	_, err := s.Crawl(context.Background(), []string{"https://a.example/"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionCloseJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	s := newSessionUnderTest(t, &urlFetcher{}, 1,
		ResourceFunc(func(context.Context) error { return boom }),
		ResourceFunc(func(context.Context) error { return nil }),
	)
	err := s.Close(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Close(context.Background()), boom)
}

func TestSessionIDIsUUIDv7(t *testing.T) {
	s := newSessionUnderTest(t, &urlFetcher{}, 1)
	parsed, err := uuid.Parse(s.ID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewSessionRequiresCrawler(t *testing.T) {
	_, err := NewSession(SessionConfig{}, nil, nil)
	assert.Error(t, err)
}
