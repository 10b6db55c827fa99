package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemoryRateLimiterConsumesBothWindows(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)}
	limiter := NewMemoryRateLimiterWithClock(5, 500, clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.TryConsume(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok, "token %d should be granted", i)
	}

	ok, err := limiter.TryConsume(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "minute window exhausted")

	rem, err := limiter.Remaining(ctx)
	require.NoError(t, err)
	assert.Less(t, rem.Minute, 1.0)
	assert.InDelta(t, 495, rem.Day, 1)
}

func TestMemoryRateLimiterMinuteRefill(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)}
	limiter := NewMemoryRateLimiterWithClock(5, 500, clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _ := limiter.TryConsume(ctx, 1)
		require.True(t, ok)
	}
	ok, _ := limiter.TryConsume(ctx, 1)
	require.False(t, ok)

	clock.Advance(time.Minute)
	ok, err := limiter.TryConsume(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "minute window refills after a minute")
}

func TestMemoryRateLimiterDayWindowBinds(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)}
	limiter := NewMemoryRateLimiterWithClock(5, 3, clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _ := limiter.TryConsume(ctx, 1)
		require.True(t, ok)
	}

	// 分钟窗回填了，但日窗仍然是瓶颈
	clock.Advance(time.Minute)
	ok, err := limiter.TryConsume(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	rem, err := limiter.Remaining(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rem.Minute, 1.0)
	assert.Less(t, rem.Day, 1.0)
}

func TestMemoryRateLimiterAllOrNothing(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)}
	limiter := NewMemoryRateLimiterWithClock(5, 2, clock.Now)
	ctx := context.Background()

	// cost 超过日窗余量时分钟窗也不得扣减
	ok, err := limiter.TryConsume(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	rem, err := limiter.Remaining(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5, rem.Minute, 0.01)
	assert.InDelta(t, 2, rem.Day, 0.01)
}

func TestMemoryRateLimiterRejectsNonPositiveCost(t *testing.T) {
	limiter := NewMemoryRateLimiter(5, 500)
	ok, err := limiter.TryConsume(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}
