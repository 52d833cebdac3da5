// Package ratelimit implements the per-Origin pacing gate that enforces
// robots crawl-delay between fetch attempts, with an optional token bucket
// cap on request rate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/article-crawler/internal/crawler"
)

// Config holds rate limiter configuration.
type Config struct {
	// OriginQPS caps attempts per Origin per second. Zero disables the cap.
	OriginQPS float64
	// Burst is the token bucket burst used with OriginQPS.
	Burst int
}

// Limiter gates attempts per Origin. While an Origin has a non-zero delay,
// only one attempt runs against it at a time and the next one starts no
// sooner than delay after the previous one finished. The first attempt
// against an Origin also waits the delay.
type Limiter struct {
	mu       sync.Mutex
	gates    map[crawler.Origin]*gate
	limiters map[crawler.Origin]*rate.Limiter
	qps      rate.Limit
	burst    int
	now      func() time.Time
}

type gate struct {
	slot chan struct{}
	// next is guarded by holding slot.
	next time.Time
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	qps := rate.Limit(cfg.OriginQPS)
	if cfg.OriginQPS <= 0 {
		qps = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		gates:    make(map[crawler.Origin]*gate),
		limiters: make(map[crawler.Origin]*rate.Limiter),
		qps:      qps,
		burst:    burst,
		now:      time.Now,
	}
}

// Acquire blocks until an attempt against origin may start. The returned
// release must be called when the attempt has finished; calling it more than
// once is harmless.
func (l *Limiter) Acquire(ctx context.Context, origin crawler.Origin, delay time.Duration) (func(), error) {
	if l.qps != rate.Inf {
		if err := l.limiterFor(origin).Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if delay <= 0 {
		return func() {}, nil
	}

	g := l.gateFor(origin, delay)
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s slot: %w", origin, ctx.Err())
	}

	if wait := g.next.Sub(l.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-g.slot
			return nil, fmt.Errorf("crawl-delay wait for %s: %w", origin, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.next = l.now().Add(delay)
			<-g.slot
		})
	}, nil
}

// Close drops all per-Origin state.
func (l *Limiter) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gates = make(map[crawler.Origin]*gate)
	l.limiters = make(map[crawler.Origin]*rate.Limiter)
	return nil
}

func (l *Limiter) gateFor(origin crawler.Origin, delay time.Duration) *gate {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[origin]
	if !ok {
		g = &gate{
			slot: make(chan struct{}, 1),
			next: l.now().Add(delay),
		}
		l.gates[origin] = g
	}
	return g
}

func (l *Limiter) limiterFor(origin crawler.Origin) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[origin]
	if !ok {
		limiter = rate.NewLimiter(l.qps, l.burst)
		l.limiters[origin] = limiter
	}
	return limiter
}

var (
	_ crawler.Pacer    = (*Limiter)(nil)
	_ crawler.Resource = (*Limiter)(nil)
)
