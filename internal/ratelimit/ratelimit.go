// Package ratelimit enforces a minimum real-time gap between fetches to the
// same registrable domain. Each domain throttles independently; fetches to
// different domains never block each other.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openrounds/pricecrawl/internal/urlkit"
)

// MinDelay and MaxDelay clamp every effective delay.
const (
	MinDelay = time.Second
	MaxDelay = 60 * time.Second
)

// Limiter tracks last-fetch times per registrable domain. State is scoped to
// one crawl session; concurrent use is safe but the design assumes one fetch
// in flight per domain.
type Limiter struct {
	mu        sync.Mutex
	lastFetch map[string]time.Time

	// now and sleep are swapped in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates an empty Limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		lastFetch: make(map[string]time.Time),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Wait blocks until delay has elapsed since the last fetch to the URL's
// registrable domain, then records the new fetch time. The first fetch to a
// domain does not wait.
func (l *Limiter) Wait(ctx context.Context, rawURL string, delay time.Duration) error {
	domain, err := urlkit.RegistrableDomain(rawURL)
	if err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}

	delay = Clamp(delay)

	for {
		l.mu.Lock()
		last, seen := l.lastFetch[domain]
		now := l.now()

		var remaining time.Duration
		if seen {
			remaining = delay - now.Sub(last)
		}

		if remaining <= 0 {
			l.lastFetch[domain] = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

// EffectiveDelay combines the configured floor with a robots-reported crawl
// delay: the larger of the two, clamped to [MinDelay, MaxDelay].
func EffectiveDelay(floor, robotsDelay time.Duration) time.Duration {
	delay := floor
	if robotsDelay > delay {
		delay = robotsDelay
	}
	return Clamp(delay)
}

// Clamp bounds a delay to [MinDelay, MaxDelay].
func Clamp(delay time.Duration) time.Duration {
	if delay < MinDelay {
		return MinDelay
	}
	if delay > MaxDelay {
		return MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
