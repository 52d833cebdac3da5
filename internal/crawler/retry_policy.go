package crawler

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffUnit = time.Second
)

// LinearRetryPolicy bounds attempts per (URL, strategy) and waits
// attempt × unit between them.
type LinearRetryPolicy struct {
	maxAttempts int
	unit        time.Duration
}

// NewLinearRetryPolicy builds a policy; non-positive values fall back to
// three attempts and a one second unit.
func NewLinearRetryPolicy(maxAttempts int, unit time.Duration) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if unit < 0 {
		unit = defaultBackoffUnit
	}
	return &LinearRetryPolicy{
		maxAttempts: maxAttempts,
		unit:        unit,
	}
}

// MaxAttempts returns the per-strategy attempt budget.
func (p *LinearRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait before the attempt that follows attempt.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(attempt) * p.unit
}

// pauseController abstracts how the crawler sleeps between attempts.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff pause: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
