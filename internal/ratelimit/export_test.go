package ratelimit

import (
	"context"
	"time"
)

// SetClockForTest replaces the limiter's clock and sleep functions.
func (l *Limiter) SetClockForTest(
	now func() time.Time,
	sleep func(ctx context.Context, d time.Duration) error,
) {
	l.now = now
	l.sleep = sleep
}
