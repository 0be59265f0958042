package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scrapix/pkg/config"
)

// Limiter paces outbound image requests.
type Limiter interface {
	// Allow reports whether a request may start now, consuming a slot if so.
	Allow() bool
	// Wait blocks until a slot is available or ctx ends.
	Wait(ctx context.Context) error
	// Reset returns the limiter to its initial state.
	Reset()
}

// NewFromConfig builds the limiter named by cfg.Strategy. A non-positive
// rate disables limiting.
func NewFromConfig(cfg config.RateLimitConfig) (Limiter, error) {
	if cfg.RequestsPerMinute <= 0 {
		return Unlimited{}, nil
	}
	switch cfg.Strategy {
	case "", "token_bucket":
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = 1
		}
		return NewTokenBucket(burst, time.Minute/time.Duration(cfg.RequestsPerMinute)), nil
	case "sliding_window":
		return NewSlidingWindow(cfg.RequestsPerMinute, time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", cfg.Strategy)
	}
}

// Unlimited never blocks.
type Unlimited struct{}

func (Unlimited) Allow() bool                   { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}

// TokenBucket holds up to capacity tokens and adds one every interval.
type TokenBucket struct {
	capacity   int
	tokens     int
	interval   time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		interval:   interval,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		delay := tb.interval - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill(now time.Time) {
	if tb.interval <= 0 {
		tb.tokens = tb.capacity
		return
	}
	earned := int(now.Sub(tb.lastRefill) / tb.interval)
	if earned <= 0 {
		return
	}
	tb.tokens = min(tb.capacity, tb.tokens+earned)
	tb.lastRefill = tb.lastRefill.Add(time.Duration(earned) * tb.interval)
	if tb.tokens == tb.capacity {
		tb.lastRefill = now
	}
}

// SlidingWindow admits at most maxRequests in any window.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates an empty window.
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.evict(now)
	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}
	return false
}

func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		var delay time.Duration
		if len(sw.requests) > 0 {
			delay = sw.windowSize - time.Since(sw.requests[0])
		}
		sw.mu.Unlock()

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && sw.requests[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		n := copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:n]
	}
}

// sleep waits for d, with a floor that keeps Wait loops from spinning.
func sleep(ctx context.Context, d time.Duration) error {
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
