package crawler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces request starts at least interval apart.
// It is a one-token bucket: Begin takes the token when a request starts and
// Delay reports how long until the next one is available, i.e.
// max(0, interval - time since the last Begin).
type RateLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(interval time.Duration) *RateLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Interval returns the configured spacing
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

// Begin marks the start of a request and returns the start time. It never
// waits: callers start a request only after a Pause has returned without
// error, and a cancelled Pause ends the crawl, so no owed delay is skipped.
// A cancelled Pause leaves the reservation state untouched and a later
// Pause still waits the full remainder.
func (r *RateLimiter) Begin() time.Time {
	start := r.now()
	r.limiter.ReserveN(start, 1)
	return start
}

// Delay returns how long a request starting at now would have to wait
func (r *RateLimiter) Delay(now time.Time) time.Duration {
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() {
		return 0
	}
	d := res.DelayFrom(now)
	// Only peeking: hand the token back
	res.CancelAt(now)
	return d
}

// Pause blocks until the next request may start and returns the time slept
func (r *RateLimiter) Pause(ctx context.Context) (time.Duration, error) {
	d := r.Delay(r.now())
	if d <= 0 {
		return 0, nil
	}
	if err := r.sleep(ctx, d); err != nil {
		return 0, err
	}
	return d, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
