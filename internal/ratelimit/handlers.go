package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleRateLimitStatus returns the current rate limit status for the requesting IP/user
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		status := gin.H{
			"ip": ip,
			"limits": gin.H{
				"ip_per_minute": gin.H{
					"limit":  rl.config.IPLimitPerMin,
					"period": "1 minute",
				},
				"submissions_per_week": gin.H{
					"limit":  rl.config.SubmitLimitPerWeek,
					"period": "1 week",
				},
			},
			"timestamp": time.Now().Format(time.RFC3339),
		}

		if userID, exists := c.Get("user_id"); exists {
			if userIDStr, ok := userID.(string); ok {
				status["user_id"] = userIDStr
			}
		}

		c.JSON(http.StatusOK, status)
	}
}

// HandleAdminRateLimits returns comprehensive rate limit information (admin only)
func (rl *RateLimiter) HandleAdminRateLimits() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		keyCount, err := rl.GetKeyCount(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to get key count",
			})
			return
		}

		stats := rl.GetStats()

		var rateLimitMetrics map[string]interface{}
		if rl.metrics != nil {
			rateLimitMetrics = rl.metrics.GetRateLimitStats()
		}

		c.JSON(http.StatusOK, gin.H{
			"total_keys":    keyCount,
			"limiter_stats": stats,
			"metrics":       rateLimitMetrics,
			"timestamp":     time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminResetRateLimit resets rate limits for a specific user (admin only)
func (rl *RateLimiter) HandleAdminResetRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := c.Param("userID")

		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "user ID is required",
			})
			return
		}

		if err := rl.InvalidateUser(ctx, userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to reset rate limit",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "rate limit reset successfully",
			"user_id":   userID,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}
