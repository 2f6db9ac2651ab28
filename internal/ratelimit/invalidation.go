package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// InvalidateUser removes all rate limit keys for a specific user,
// used when manually resetting a founder's weekly submission quota.
func (rl *RateLimiter) InvalidateUser(ctx context.Context, userID string) error {
	if !rl.redisClient.IsEnabled() {
		// For in-memory fallback, remove the specific limiters
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		submitKey := fmt.Sprintf("ratelimit:user:%s:submissions", userID)
		delete(rl.fallbackLimiters, submitKey)

		slog.Info("Invalidated user rate limits (in-memory)", "user_id", userID[:8]+"...")
		return nil
	}

	// Delete all keys matching the user pattern
	pattern := fmt.Sprintf("ratelimit:user:%s:*", userID)
	return rl.deleteByPattern(ctx, pattern)
}

// InvalidateIP removes all rate limit keys for a specific IP address
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		ipKey := fmt.Sprintf("ratelimit:ip:%s", ip)
		delete(rl.fallbackLimiters, ipKey)

		slog.Info("Invalidated IP rate limits (in-memory)", "ip", ip)
		return nil
	}

	pattern := fmt.Sprintf("ratelimit:ip:%s*", ip)
	return rl.deleteByPattern(ctx, pattern)
}

// InvalidateAll removes all rate limit keys (emergency use only)
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		count := len(rl.fallbackLimiters)
		rl.fallbackLimiters = make(map[string]*rate.Limiter)

		slog.Warn("Invalidated all rate limits (in-memory)", "count", count)
		return nil
	}

	pattern := "ratelimit:*"
	slog.Warn("Invalidating ALL rate limits", "pattern", pattern)
	return rl.deleteByPattern(ctx, pattern)
}

// GetKeyCount returns the number of active rate limit keys
func (rl *RateLimiter) GetKeyCount(ctx context.Context) (int, error) {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.RLock()
		defer rl.fallbackMutex.RUnlock()
		return len(rl.fallbackLimiters), nil
	}

	client := rl.redisClient.GetClient()

	var cursor uint64
	var count int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, "ratelimit:*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan keys: %w", err)
		}

		count += len(keys)

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return count, nil
}

// deleteByPattern deletes all Redis keys matching a pattern
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.GetClient()

	// Use SCAN to find matching keys (more efficient than KEYS)
	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		// Delete found keys
		if len(keys) > 0 {
			deleted, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("Deleted rate limit keys by pattern", "pattern", pattern, "count", deletedCount)
	return nil
}
