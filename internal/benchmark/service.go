// Package benchmark computes cohort statistics over the latest score
// snapshot of every founder: per-dimension distributions for the benchmark
// endpoints and per-founder standing against the cohort.
package benchmark

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mehtab-afsar/qcombinator-backend/internal/database"
	"github.com/mehtab-afsar/qcombinator-backend/internal/errors"
	"github.com/mehtab-afsar/qcombinator-backend/internal/scoring"
)

// DimensionStats summarizes the cohort distribution of one dimension
type DimensionStats struct {
	Dimension  string    `json:"dimension"`
	CohortSize int       `json:"cohort_size"`
	Median     float64   `json:"median"`
	P25        float64   `json:"p25"`
	P75        float64   `json:"p75"`
	P90        float64   `json:"p90"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Standing is one founder's position against the cohort. Percentiles are
// nil when the cohort is too small to rank against.
type Standing struct {
	UserID            string          `json:"user_id"`
	OverallScore      int             `json:"overall_score"`
	OverallPercentile *int            `json:"overall_percentile"`
	Dimensions        map[string]*int `json:"dimension_percentiles"`
	CohortSize        int             `json:"cohort_size"`
}

// Service handles benchmark operations
type Service struct {
	repo  *database.Repository
	cache *BenchmarkCache
}

// NewService creates a new benchmark service
func NewService(repo *database.Repository) *Service {
	return &Service{
		repo:  repo,
		cache: NewBenchmarkCache(15 * time.Minute),
	}
}

// NewServiceWithCache creates a new benchmark service with custom cache
func NewServiceWithCache(repo *database.Repository, cache *BenchmarkCache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// dimensionValues extracts one dimension (or the overall score) from the cohort
func dimensionValues(cohort []database.CohortScore, dimension string) []float64 {
	values := make([]float64, 0, len(cohort))
	for _, member := range cohort {
		if dimension == scoring.DimOverall {
			values = append(values, float64(member.OverallScore))
		} else if v, ok := member.Dimensions.Get(dimension); ok {
			values = append(values, v)
		}
	}
	return values
}

// quantile returns the q-th quantile (0..100) of values using the
// nearest-rank method on a sorted copy.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := int(float64(len(sorted)-1) * q / 100.0)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func validDimension(dimension string) bool {
	if dimension == scoring.DimOverall {
		return true
	}
	for _, d := range scoring.Dimensions {
		if d == dimension {
			return true
		}
	}
	return false
}

// Benchmarks returns the cohort distribution for one dimension
func (s *Service) Benchmarks(dimension string) (*DimensionStats, error) {
	if !validDimension(dimension) {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown dimension: %s", dimension))
	}

	if cached, found := s.cache.GetStats(dimension); found {
		return cached, nil
	}

	cohort, err := s.repo.LatestPerUser()
	if err != nil {
		return nil, fmt.Errorf("failed to load cohort: %w", err)
	}

	values := dimensionValues(cohort, dimension)

	stats := &DimensionStats{
		Dimension:  dimension,
		CohortSize: len(values),
		Median:     quantile(values, 50),
		P25:        quantile(values, 25),
		P75:        quantile(values, 75),
		P90:        quantile(values, 90),
		UpdatedAt:  time.Now(),
	}

	s.cache.SetStats(dimension, stats)
	return stats, nil
}

// Standing computes where a founder sits inside the cohort, overall and
// per dimension. Returns nil when the founder has no score yet.
func (s *Service) Standing(userID string) (*Standing, error) {
	latest, err := s.repo.LatestSnapshot(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if latest == nil {
		return nil, nil
	}

	cohort, err := s.repo.LatestPerUser()
	if err != nil {
		return nil, fmt.Errorf("failed to load cohort: %w", err)
	}

	standing := &Standing{
		UserID:            userID,
		OverallScore:      latest.OverallScore,
		OverallPercentile: scoring.ComputePercentile(float64(latest.OverallScore), dimensionValues(cohort, scoring.DimOverall)),
		Dimensions:        make(map[string]*int, len(scoring.Dimensions)),
		CohortSize:        len(cohort),
	}

	for _, dim := range scoring.Dimensions {
		value, _ := latest.Dimensions.Get(dim)
		standing.Dimensions[dim] = scoring.ComputePercentile(value, dimensionValues(cohort, dim))
	}

	return standing, nil
}

// CohortOverallScores returns the overall score of every cohort member,
// used by the submit path to rank a fresh score.
func (s *Service) CohortOverallScores() ([]database.CohortScore, error) {
	return s.repo.LatestPerUser()
}

// Invalidate drops cached benchmark stats, called after any snapshot insert
func (s *Service) Invalidate() {
	s.cache.InvalidateAll()
}

// WarmCache pre-computes benchmark stats for every dimension
func (s *Service) WarmCache() {
	slog.Info("Starting benchmark cache warming")

	dims := append([]string{scoring.DimOverall}, scoring.Dimensions...)
	for _, dim := range dims {
		if _, err := s.Benchmarks(dim); err != nil {
			slog.Error("Failed to warm benchmark cache", "dimension", dim, "error", err)
		}
	}

	slog.Info("Benchmark cache warming completed")
}

// AutoRefresh periodically re-warms the benchmark cache
func (s *Service) AutoRefresh(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			slog.Debug("Auto-refreshing benchmark cache")
			s.WarmCache()
		}
	}()
}

// CacheStats exposes cache statistics for the stats endpoint
func (s *Service) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}
