package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"darkmon/core"
)

// ErrInvalidLimits is returned when a limiter is constructed with a zero or
// negative ceiling. Ceilings fail closed: there is no "unlimited" window.
var ErrInvalidLimits = errors.New("invalid rate limit configuration")

// Limiter enforces one source's request budget. A token bucket (refilled at
// the per-minute rate, capped at burst) gates short-term throughput, while a
// rolling timestamp log enforces the minute, hour and day ceilings
// independently of bucket state. A request proceeds only when the bucket AND
// all three windows allow it.
type Limiter struct {
	cfg    core.RateLimitConfig
	bucket *rate.Limiter
	logger *zap.SugaredLogger

	mu      sync.Mutex
	history []time.Time // accepted request timestamps, pruned past 24h

	// test seam; defaults to time.Now
	now func() time.Time
}

// New creates a limiter for the given budget. Burst capacity must be at least
// one and every window ceiling must be positive.
func New(cfg core.RateLimitConfig, logger *zap.SugaredLogger) (*Limiter, error) {
	if cfg.RequestsPerMinute <= 0 || cfg.RequestsPerHour <= 0 || cfg.RequestsPerDay <= 0 {
		return nil, fmt.Errorf("%w: window ceilings must be positive", ErrInvalidLimits)
	}
	if cfg.BurstCapacity < 1 {
		return nil, fmt.Errorf("%w: burst capacity must be >= 1", ErrInvalidLimits)
	}

	return &Limiter{
		cfg:    cfg,
		bucket: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.BurstCapacity),
		logger: logger,
		now:    time.Now,
	}, nil
}

// CanProceed reports whether a request would be admitted right now without
// consuming a token.
func (l *Limiter) CanProceed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	return l.bucket.TokensAt(now) >= 1 && l.windowsAllowLocked(now)
}

// Acquire blocks until a token is available, consuming exactly one token per
// accepted request. It loops rather than sleeping once: under contention the
// projected wait can change while this caller is suspended.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire admits the request if possible, otherwise returns how long the
// caller should wait before re-evaluating.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if l.bucket.TokensAt(now) >= 1 && l.windowsAllowLocked(now) {
		// ReserveN consumes the token we just observed
		l.bucket.ReserveN(now, 1)
		l.history = append(l.history, now)
		return 0, true
	}

	return l.waitLocked(now), false
}

// waitLocked computes the wait as the maximum of the time to the next bucket
// refill and the time for the oldest request to age out of each saturated
// window.
func (l *Limiter) waitLocked(now time.Time) time.Duration {
	var wait time.Duration

	if l.bucket.TokensAt(now) < 1 {
		refill := time.Duration(60000/l.cfg.RequestsPerMinute) * time.Millisecond
		wait = maxDuration(wait, refill)
	}

	wait = maxDuration(wait, l.windowWaitLocked(now, time.Minute, l.cfg.RequestsPerMinute))
	wait = maxDuration(wait, l.windowWaitLocked(now, time.Hour, l.cfg.RequestsPerHour))
	wait = maxDuration(wait, l.windowWaitLocked(now, 24*time.Hour, l.cfg.RequestsPerDay))

	if wait <= 0 {
		// Contention resolved between checks; re-evaluate almost immediately
		wait = time.Millisecond
	}
	return wait
}

// windowWaitLocked returns how long until the oldest in-window request ages
// out, or zero if the window is not saturated.
func (l *Limiter) windowWaitLocked(now time.Time, window time.Duration, ceiling int) time.Duration {
	cutoff := now.Add(-window)
	count := 0
	var oldest time.Time
	for _, t := range l.history {
		if t.After(cutoff) {
			if count == 0 {
				oldest = t
			}
			count++
		}
	}
	if count < ceiling {
		return 0
	}
	return oldest.Add(window).Sub(now)
}

// windowsAllowLocked checks all three window ceilings
func (l *Limiter) windowsAllowLocked(now time.Time) bool {
	return l.countSinceLocked(now.Add(-time.Minute)) < l.cfg.RequestsPerMinute &&
		l.countSinceLocked(now.Add(-time.Hour)) < l.cfg.RequestsPerHour &&
		l.countSinceLocked(now.Add(-24*time.Hour)) < l.cfg.RequestsPerDay
}

func (l *Limiter) countSinceLocked(cutoff time.Time) int {
	count := 0
	for _, t := range l.history {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// pruneLocked drops history older than the day window to bound memory
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	idx := 0
	for idx < len(l.history) && !l.history[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.history = append(l.history[:0], l.history[idx:]...)
	}
}

// Reset restores full burst tokens and clears the request history
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bucket = rate.NewLimiter(rate.Limit(float64(l.cfg.RequestsPerMinute)/60.0), l.cfg.BurstCapacity)
	l.history = nil
	if l.logger != nil {
		l.logger.Debugw("Rate limiter reset",
			"requests_per_minute", l.cfg.RequestsPerMinute,
			"burst", l.cfg.BurstCapacity)
	}
}

// Snapshot reports current window consumption for operators
type Snapshot struct {
	MinuteCount int `json:"minute_count"`
	HourCount   int `json:"hour_count"`
	DayCount    int `json:"day_count"`
}

// Usage returns current consumption across the three windows
func (l *Limiter) Usage() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	return Snapshot{
		MinuteCount: l.countSinceLocked(now.Add(-time.Minute)),
		HourCount:   l.countSinceLocked(now.Add(-time.Hour)),
		DayCount:    l.countSinceLocked(now.Add(-24 * time.Hour)),
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
