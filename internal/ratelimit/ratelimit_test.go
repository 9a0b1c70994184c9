package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openrounds/pricecrawl/internal/ratelimit"
)

// fakeClock advances instantly instead of sleeping and records every sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) totalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

func newTestLimiter(clock *fakeClock) *ratelimit.Limiter {
	limiter := ratelimit.NewLimiter()
	limiter.SetClockForTest(clock.Now, clock.Sleep)
	return limiter
}

func TestWait_SameDomainEnforcesGap(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://shop.test/a", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := clock.totalSlept(); got != 0 {
		t.Errorf("first fetch should not wait, slept %v", got)
	}

	if err := limiter.Wait(ctx, "https://shop.test/b", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := clock.totalSlept(); got < time.Second {
		t.Errorf("second fetch should wait >= 1s, slept %v", got)
	}
}

func TestWait_DifferentDomainsDoNotBlock(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://alpha.test/a", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := limiter.Wait(ctx, "https://beta.test/a", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := clock.totalSlept(); got != 0 {
		t.Errorf("different domains must not block each other, slept %v", got)
	}
}

func TestWait_WWWSharesBucket(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://www.shop.test/a", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := limiter.Wait(ctx, "https://shop.test/b", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := clock.totalSlept(); got < time.Second {
		t.Errorf("www and bare host share one bucket, slept only %v", got)
	}
}

func TestWait_InvalidURL(t *testing.T) {
	limiter := ratelimit.NewLimiter()

	if err := limiter.Wait(context.Background(), "not a url", time.Second); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestWait_CancelledContext(t *testing.T) {
	limiter := ratelimit.NewLimiter()
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://slow.test/a", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	if err := limiter.Wait(cancelled, "https://slow.test/b", time.Minute); err == nil {
		t.Error("expected context error while waiting")
	}
}

func TestEffectiveDelay(t *testing.T) {
	tests := []struct {
		name   string
		floor  time.Duration
		robots time.Duration
		want   time.Duration
	}{
		{"floor wins", 2 * time.Second, time.Second, 2 * time.Second},
		{"robots wins", 2 * time.Second, 10 * time.Second, 10 * time.Second},
		{"below min clamps up", 0, 0, time.Second},
		{"above max clamps down", time.Second, 5 * time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ratelimit.EffectiveDelay(tt.floor, tt.robots); got != tt.want {
				t.Errorf("EffectiveDelay(%v, %v) = %v, want %v", tt.floor, tt.robots, got, tt.want)
			}
		})
	}
}
