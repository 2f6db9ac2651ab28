package scoring

import "math"

// minCohortSize is the smallest cohort a percentile is meaningful for.
// A cohort of one is always the target itself.
const minCohortSize = 2

// ComputePercentile returns the share of the cohort scoring strictly below
// the target, rounded to 0-100. Entries equal to the target count in the
// denominator but not the numerator, so a score tied with the whole cohort
// ranks at 0. Returns nil when the cohort is too small to rank against;
// callers must treat nil as "insufficient cohort data", not as zero.
func ComputePercentile(target float64, cohort []float64) *int {
	if len(cohort) < minCohortSize {
		return nil
	}

	below := 0
	for _, s := range cohort {
		if s < target {
			below++
		}
	}

	p := int(math.Round(100 * float64(below) / float64(len(cohort))))
	return &p
}
