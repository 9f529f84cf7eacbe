package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"darkmon/core"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestLimiter(t *testing.T, cfg core.RateLimitConfig) (*Limiter, *time.Time) {
	t.Helper()
	lim, err := New(cfg, testLogger())
	require.NoError(t, err)

	current := time.Now()
	lim.now = func() time.Time { return current }
	return lim, &current
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  core.RateLimitConfig
	}{
		{"zero minute ceiling", core.RateLimitConfig{RequestsPerMinute: 0, RequestsPerHour: 10, RequestsPerDay: 10, BurstCapacity: 1}},
		{"zero hour ceiling", core.RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 0, RequestsPerDay: 10, BurstCapacity: 1}},
		{"zero day ceiling", core.RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 10, RequestsPerDay: 0, BurstCapacity: 1}},
		{"zero burst", core.RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 10, RequestsPerDay: 10, BurstCapacity: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, testLogger())
			assert.ErrorIs(t, err, ErrInvalidLimits)
		})
	}
}

func TestAcquire_BurstThenBlocked(t *testing.T) {
	lim, _ := newTestLimiter(t, core.RateLimitConfig{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
		BurstCapacity:     3,
	})

	// Burst capacity admits exactly three requests with no elapsed time
	for i := 0; i < 3; i++ {
		wait, ok := lim.tryAcquire()
		require.True(t, ok, "request %d should be admitted", i)
		assert.Zero(t, wait)
	}

	wait, ok := lim.tryAcquire()
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestAcquire_RefillAdmitsAfterWait(t *testing.T) {
	lim, current := newTestLimiter(t, core.RateLimitConfig{
		RequestsPerMinute: 60, // one token per second
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
		BurstCapacity:     1,
	})

	_, ok := lim.tryAcquire()
	require.True(t, ok)

	_, ok = lim.tryAcquire()
	require.False(t, ok)

	*current = current.Add(1100 * time.Millisecond)
	_, ok = lim.tryAcquire()
	assert.True(t, ok, "a token should have refilled after the wait")
}

func TestAcquire_BlocksInRealTime(t *testing.T) {
	lim, err := New(core.RateLimitConfig{
		RequestsPerMinute: 600, // refill every 100ms
		RequestsPerHour:   10000,
		RequestsPerDay:    100000,
		BurstCapacity:     1,
	}, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, lim.Acquire(ctx))

	start := time.Now()
	require.NoError(t, lim.Acquire(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond, "second acquire should have waited for a refill")
	assert.Less(t, elapsed, time.Second)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	lim, err := New(core.RateLimitConfig{
		RequestsPerMinute: 1,
		RequestsPerHour:   10,
		RequestsPerDay:    100,
		BurstCapacity:     1,
	}, testLogger())
	require.NoError(t, err)

	require.NoError(t, lim.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = lim.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWindowCeilings_NeverExceeded(t *testing.T) {
	cfg := core.RateLimitConfig{
		RequestsPerMinute: 5,
		RequestsPerHour:   10,
		RequestsPerDay:    15,
		BurstCapacity:     5,
	}
	lim, current := newTestLimiter(t, cfg)

	// Simulate many attempts with small time advances and assert the hour
	// and day ceilings are never observed violated
	accepted := 0
	for step := 0; step < 200; step++ {
		if _, ok := lim.tryAcquire(); ok {
			accepted++
		}

		usage := lim.Usage()
		require.LessOrEqual(t, usage.MinuteCount, cfg.RequestsPerMinute)
		require.LessOrEqual(t, usage.HourCount, cfg.RequestsPerHour)
		require.LessOrEqual(t, usage.DayCount, cfg.RequestsPerDay)

		*current = current.Add(30 * time.Second)
	}

	// 200 steps span 100 minutes; the day ceiling is the binding constraint
	assert.LessOrEqual(t, accepted, cfg.RequestsPerDay)
	assert.Greater(t, accepted, 0)
}

func TestHourCeiling_BlocksDespiteBurst(t *testing.T) {
	lim, current := newTestLimiter(t, core.RateLimitConfig{
		RequestsPerMinute: 5,
		RequestsPerHour:   8,
		RequestsPerDay:    100,
		BurstCapacity:     5,
	})

	admitted := 0
	for i := 0; i < 4; i++ {
		for j := 0; j < 5; j++ {
			if _, ok := lim.tryAcquire(); ok {
				admitted++
			}
		}
		*current = current.Add(2 * time.Minute)
	}

	assert.Equal(t, 8, admitted, "hour ceiling should cap admissions regardless of burst refills")
}

func TestReset_RestoresBurstAndClearsHistory(t *testing.T) {
	lim, _ := newTestLimiter(t, core.RateLimitConfig{
		RequestsPerMinute: 60,
		RequestsPerHour:   100,
		RequestsPerDay:    1000,
		BurstCapacity:     2,
	})

	_, ok := lim.tryAcquire()
	require.True(t, ok)
	_, ok = lim.tryAcquire()
	require.True(t, ok)
	_, ok = lim.tryAcquire()
	require.False(t, ok)

	lim.Reset()
	// Reset replaces the bucket, which uses wall-clock time again
	lim.now = time.Now

	assert.True(t, lim.CanProceed())
	assert.Equal(t, Snapshot{}, lim.Usage())
}

func TestCanProceed_DoesNotConsume(t *testing.T) {
	lim, _ := newTestLimiter(t, core.RateLimitConfig{
		RequestsPerMinute: 60,
		RequestsPerHour:   100,
		RequestsPerDay:    1000,
		BurstCapacity:     1,
	})

	assert.True(t, lim.CanProceed())
	assert.True(t, lim.CanProceed(), "CanProceed must not consume tokens")

	_, ok := lim.tryAcquire()
	require.True(t, ok)
	assert.False(t, lim.CanProceed())
}
