package benchmark

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mehtab-afsar/qcombinator-backend/internal/cache"
)

// BenchmarkCache provides caching for benchmark data
type BenchmarkCache struct {
	cache *cache.Cache
}

// NewBenchmarkCache creates a new benchmark cache
func NewBenchmarkCache(ttl time.Duration) *BenchmarkCache {
	return &BenchmarkCache{
		cache: cache.NewCache(ttl),
	}
}

// generateCacheKey creates a cache key for dimension stats
func (bc *BenchmarkCache) generateCacheKey(dimension string) string {
	return fmt.Sprintf("benchmark:%s", dimension)
}

// GetStats retrieves cached dimension stats
func (bc *BenchmarkCache) GetStats(dimension string) (*DimensionStats, bool) {
	cacheKey := bc.generateCacheKey(dimension)

	data, found := bc.cache.Get(cacheKey)
	if !found {
		return nil, false
	}

	var stats DimensionStats
	if err := json.Unmarshal(data, &stats); err != nil {
		slog.Error("Failed to unmarshal cached benchmark data", "error", err, "key", cacheKey)
		return nil, false
	}

	slog.Debug("Benchmark cache hit", "dimension", dimension)
	return &stats, true
}

// SetStats caches dimension stats
func (bc *BenchmarkCache) SetStats(dimension string, stats *DimensionStats) {
	cacheKey := bc.generateCacheKey(dimension)

	data, err := json.Marshal(stats)
	if err != nil {
		slog.Error("Failed to marshal benchmark data for cache", "error", err, "dimension", dimension)
		return
	}

	bc.cache.Set(cacheKey, data)
	slog.Debug("Benchmark cached", "dimension", dimension, "cohort_size", stats.CohortSize)
}

// InvalidateAll drops every cached benchmark entry. Called whenever a new
// snapshot lands so readers never see a stale cohort for the full TTL.
func (bc *BenchmarkCache) InvalidateAll() {
	slog.Debug("Invalidating benchmark cache")
	bc.cache.DeletePrefix("benchmark:")
}

// Stats returns cache statistics
func (bc *BenchmarkCache) Stats() map[string]interface{} {
	return bc.cache.Stats()
}
