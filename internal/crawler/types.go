package crawler

import (
	"net/http"
	"time"
)

// Strategy names a fetch strategy. Strategies run in the order they are
// registered with the Crawler.
type Strategy string

// Supported fetch strategies.
const (
	StrategyLight    Strategy = "light"
	StrategyRendered Strategy = "rendered"
)

// Page is the raw content returned by a Fetcher.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// ContentLength returns the size of the body in bytes.
func (p Page) ContentLength() int {
	return len(p.Body)
}

// ArticleRecord is the structured article extracted from one page. Text is
// never empty on a record handed back to callers.
type ArticleRecord struct {
	URL       string     `json:"url"`
	Title     string     `json:"title,omitempty"`
	Text      string     `json:"text"`
	Authors   []string   `json:"authors"`
	Published *time.Time `json:"published,omitempty"`
}

// Outcome labels how a URL's state machine finished.
type Outcome string

// URL outcomes, used for logging and metrics.
const (
	OutcomeArticle               Outcome = "article"
	OutcomePolicyBlocked         Outcome = "policy_blocked"
	OutcomeBlocked               Outcome = "blocked"
	OutcomeExhausted             Outcome = "exhausted"
	OutcomeCapabilityUnavailable Outcome = "capability_unavailable"
	OutcomeInvalidURL            Outcome = "invalid_url"
	OutcomeCanceled              Outcome = "canceled"
)
