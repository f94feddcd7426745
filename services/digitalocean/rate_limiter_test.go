package digitalocean

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstThenBlock(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxTokens: 2, RefillRate: 0.001})

	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxTokens: 1, RefillRate: 100})
	require.True(t, rl.TryAcquire())

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
	assert.LessOrEqual(t, rl.AvailableTokens(), 1.0)
}

func TestRateLimiterFromRPM(t *testing.T) {
	cfg := RateLimiterFromRPM(120, 5)
	assert.InDelta(t, 2.0, cfg.RefillRate, 1e-9)
	assert.Equal(t, 5.0, cfg.MaxTokens)

	def := RateLimiterFromRPM(0, 0)
	assert.Equal(t, DefaultRateLimiterConfig().RefillRate, def.RefillRate)
}

func TestRateLimiter_Penalize(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxTokens: 3, RefillRate: 1000})
	rl.Penalize(30 * time.Millisecond)
	assert.False(t, rl.TryAcquire())

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRateLimiter_MinIntervalSpacesCallers(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxTokens: 5, RefillRate: 1000, MinInterval: 15 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestRateLimiter_CancelReturnsToken(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxTokens: 1, RefillRate: 0.001})
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	require.Error(t, rl.Wait(ctx))
	assert.InDelta(t, 0, rl.AvailableTokens(), 0.01)
}
