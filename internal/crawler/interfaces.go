package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves raw page content for one URL. Implementations wrap errors
// with the sentinels in errors.go.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Prober is implemented by fetchers that can tell without a network round
// trip that they cannot run in this deployment. A non-nil Probe error marks
// the strategy unavailable before any attempt is made.
type Prober interface {
	Probe() error
}

// Extractor turns raw page content into an ArticleRecord or fails with ErrParse.
type Extractor interface {
	Extract(rawURL string, body []byte) (ArticleRecord, error)
}

// PolicyCache resolves and caches robots policy per Origin.
type PolicyCache interface {
	Allowed(ctx context.Context, rawURL string) bool
	DelayFor(origin Origin) time.Duration
}

// Pacer gates fetch attempts per Origin. Acquire blocks until an attempt
// against origin may start; the returned release must be called once the
// attempt has finished.
type Pacer interface {
	Acquire(ctx context.Context, origin Origin, delay time.Duration) (release func(), err error)
}

// Resource is something a Session must release exactly once at teardown.
type Resource interface {
	Close(ctx context.Context) error
}

// ResourceFunc adapts a plain function to Resource.
type ResourceFunc func(ctx context.Context) error

// Close implements Resource.
func (f ResourceFunc) Close(ctx context.Context) error {
	return f(ctx)
}
