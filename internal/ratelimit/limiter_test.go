package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehtab-afsar/qcombinator-backend/internal/monitoring"
)

func newFallbackLimiter(config Config) *RateLimiter {
	redisClient := &RedisClient{enabled: false}
	return NewRateLimiter(redisClient, config, monitoring.NewMetrics())
}

func TestAllowIPFallbackMode(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:      5,
		SubmitLimitPerWeek: 5,
		BurstMultiplier:    1,
	})
	ctx := context.Background()

	// Burst capacity equals the limit, so the first 5 requests pass.
	for i := 0; i < 5; i++ {
		result, err := limiter.AllowIP(ctx, "192.168.1.10")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
	}

	result, err := limiter.AllowIP(ctx, "192.168.1.10")
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request inside the window should be blocked")
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestAllowIPIsolatedPerAddress(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:      5,
		SubmitLimitPerWeek: 5,
		BurstMultiplier:    1,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.AllowIP(ctx, "192.168.2.1")
		require.NoError(t, err)
	}
	blocked, err := limiter.AllowIP(ctx, "192.168.2.1")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	other, err := limiter.AllowIP(ctx, "192.168.2.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "a different IP has its own bucket")
}

func TestAllowSubmissionQuota(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:      60,
		SubmitLimitPerWeek: 5,
		BurstMultiplier:    1,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.AllowSubmission(ctx, "founder-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "submission %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
	}

	// The weekly refill rate is far too slow to matter inside a test run.
	result, err := limiter.AllowSubmission(ctx, "founder-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	other, err := limiter.AllowSubmission(ctx, "founder-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestInvalidateUserResetsQuota(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:      60,
		SubmitLimitPerWeek: 5,
		BurstMultiplier:    1,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.AllowSubmission(ctx, "founder-3")
		require.NoError(t, err)
	}
	blocked, err := limiter.AllowSubmission(ctx, "founder-3")
	require.NoError(t, err)
	require.False(t, blocked.Allowed)

	require.NoError(t, limiter.InvalidateUser(ctx, "founder-3"))

	result, err := limiter.AllowSubmission(ctx, "founder-3")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "invalidation should reset the quota")
}

func TestGetStatsFallbackMode(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	ctx := context.Background()

	_, err := limiter.AllowIP(ctx, "192.168.3.1")
	require.NoError(t, err)

	stats := limiter.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["fallback_limiters"])
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 60, config.IPLimitPerMin)
	assert.Equal(t, 5, config.SubmitLimitPerWeek)
	assert.Equal(t, 2, config.BurstMultiplier)
}
