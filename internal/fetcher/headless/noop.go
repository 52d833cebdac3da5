package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/article-crawler/internal/crawler"
)

// Unavailable stands in for the rendered strategy when no browser can run in
// this deployment. Every fetch reports crawler.ErrCapabilityUnavailable.
type Unavailable struct {
	Reason string
}

// NewUnavailable creates an Unavailable fetcher.
func NewUnavailable(reason string) *Unavailable {
	return &Unavailable{Reason: reason}
}

// Probe reports the strategy as unavailable so the crawler never spends an
// attempt on it.
func (u *Unavailable) Probe() error {
	reason := u.Reason
	if reason == "" {
		reason = "headless rendering disabled"
	}
	return fmt.Errorf("%w: %s", crawler.ErrCapabilityUnavailable, reason)
}

// Fetch always fails with crawler.ErrCapabilityUnavailable.
func (u *Unavailable) Fetch(context.Context, string) (crawler.Page, error) {
	return crawler.Page{}, u.Probe()
}

var (
	_ crawler.Fetcher = (*Unavailable)(nil)
	_ crawler.Prober  = (*Unavailable)(nil)
)
