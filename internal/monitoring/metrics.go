package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	ScoresComputed      int64
	BoostsApplied       int64
	BoostsSkipped       int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	// Response time samples for percentiles
	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	// Status code tracking
	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	// Rate limit metrics
	RateLimitIPBlocks       int64
	RateLimitUserBlocks     int64
	RateLimitRedisErrors    int64
	RateLimitFallbackCount  int64
	RateLimitEndpointBlocks map[string]int64
	RateLimitMutex          sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:               time.Now(),
		ResponseTimes:           make([]time.Duration, 0, 1000), // Pre-allocate for better performance
		RequestCountByStatus:    make(map[int]int64),
		RateLimitEndpointBlocks: make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// IncrementScoresComputed increments the assessment scoring count
func (m *Metrics) IncrementScoresComputed() {
	atomic.AddInt64(&m.ScoresComputed, 1)
}

// IncrementBoostApplied increments the applied boost count
func (m *Metrics) IncrementBoostApplied() {
	atomic.AddInt64(&m.BoostsApplied, 1)
}

// IncrementBoostSkipped increments the skipped boost count
func (m *Metrics) IncrementBoostSkipped() {
	atomic.AddInt64(&m.BoostsSkipped, 1)
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	// Update simple average
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	// Store detailed response time for percentiles (keep last 1000 samples)
	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:] // Remove oldest
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	// Create a copy for sorting
	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64)
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	scores := atomic.LoadInt64(&m.ScoresComputed)
	boostsApplied := atomic.LoadInt64(&m.BoostsApplied)
	boostsSkipped := atomic.LoadInt64(&m.BoostsSkipped)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	totalCacheRequests := cacheHits + cacheMisses
	if totalCacheRequests > 0 {
		cacheHitRate = float64(cacheHits) / float64(totalCacheRequests) * 100
	}

	uptime := time.Since(m.StartTime)

	return map[string]interface{}{
		"uptime_seconds":         uptime.Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"scores_computed":        scores,
		"boosts_applied":         boostsApplied,
		"boosts_skipped":         boostsSkipped,
		"avg_response_time_ms":   float64(avgResponseTime) / 1000000,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1000000,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1000000,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1000000,
		"status_code_distribution": m.GetStatusCodeDistribution(),
	}
}

// Reset resets all metrics (useful for testing)
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RequestCount, 0)
	atomic.StoreInt64(&m.ErrorCount, 0)
	atomic.StoreInt64(&m.CacheHits, 0)
	atomic.StoreInt64(&m.CacheMisses, 0)
	atomic.StoreInt64(&m.ScoresComputed, 0)
	atomic.StoreInt64(&m.BoostsApplied, 0)
	atomic.StoreInt64(&m.BoostsSkipped, 0)
	atomic.StoreInt64(&m.AverageResponseTime, 0)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = m.ResponseTimes[:0]
	m.ResponseTimesMutex.Unlock()

	m.StatusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.StatusMutex.Unlock()

	m.RateLimitMutex.Lock()
	m.RateLimitEndpointBlocks = make(map[string]int64)
	m.RateLimitMutex.Unlock()

	atomic.StoreInt64(&m.RateLimitIPBlocks, 0)
	atomic.StoreInt64(&m.RateLimitUserBlocks, 0)
	atomic.StoreInt64(&m.RateLimitRedisErrors, 0)
	atomic.StoreInt64(&m.RateLimitFallbackCount, 0)

	m.StartTime = time.Now()
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementRateLimitUserBlock increments user-based rate limit blocks
func (m *Metrics) IncrementRateLimitUserBlock() {
	atomic.AddInt64(&m.RateLimitUserBlocks, 1)
}

// IncrementRateLimitRedisError increments Redis error count for rate limiting
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

// IncrementRateLimitEndpoint increments rate limit blocks for a specific endpoint
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.RateLimitMutex.Lock()
	defer m.RateLimitMutex.Unlock()
	m.RateLimitEndpointBlocks[endpoint]++
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.RateLimitMutex.RLock()
	endpointBlocksCopy := make(map[string]int64, len(m.RateLimitEndpointBlocks))
	for k, v := range m.RateLimitEndpointBlocks {
		endpointBlocksCopy[k] = v
	}
	m.RateLimitMutex.RUnlock()

	return map[string]interface{}{
		"ip_blocks":       atomic.LoadInt64(&m.RateLimitIPBlocks),
		"user_blocks":     atomic.LoadInt64(&m.RateLimitUserBlocks),
		"redis_errors":    atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count":  atomic.LoadInt64(&m.RateLimitFallbackCount),
		"endpoint_blocks": endpointBlocksCopy,
	}
}
