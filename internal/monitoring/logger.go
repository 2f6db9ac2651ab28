package monitoring

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Logger provides enhanced structured logging with context
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new enhanced logger
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Add timestamp in RFC3339 format
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// ScoreLogger logs assessment scoring details
func (l *Logger) ScoreLogger(userID, sector string, overall int, percentile *int, duration time.Duration) {
	attrs := []any{
		"user_id", userID,
		"sector", sector,
		"overall_score", overall,
		"duration_ms", duration.Milliseconds(),
	}
	if percentile != nil {
		attrs = append(attrs, "percentile", *percentile)
	} else {
		attrs = append(attrs, "percentile", "unranked")
	}

	l.Info("Assessment Scored", attrs...)
}

// BoostLogger logs artifact completion boost outcomes
func (l *Logger) BoostLogger(userID, artifactType string, applied bool, reason string, duration time.Duration) {
	l.Info("Completion Signal Processed",
		"user_id", userID,
		"artifact_type", artifactType,
		"applied", applied,
		"reason", reason,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	l.Debug("Cache Operation",
		"operation", operation,
		"key_hash", key[:8]+"...",
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
		"timestamp", time.Now().Format(time.RFC3339),
	}

	// Add additional details
	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
		"timestamp", time.Now().Format(time.RFC3339),
	)
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	l.Logger = slog.New(handler)
}

// SlowRequestWarning logs requests exceeding the latency budget
func (l *Logger) SlowRequestWarning(method, path string, duration time.Duration) {
	l.Warn("Slow Request",
		"method", method,
		"path", path,
		"duration", fmt.Sprintf("%.2fs", duration.Seconds()),
	)
}

var startTime = time.Now()
