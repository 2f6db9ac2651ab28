package scoring

import (
	apperrors "github.com/mehtab-afsar/qcombinator-backend/internal/errors"
)

const maxRating = 10.0

// sectionWeight blends one assessment section into a dimension.
type sectionWeight struct {
	section string
	weight  float64
}

// dimensionBlend maps each dimension to the sections that evidence it.
// Per-dimension weights sum to 1.0.
var dimensionBlend = map[string][]sectionWeight{
	DimMarket: {
		{SectionMarketRealism, 0.6},
		{SectionProblemFit, 0.4},
	},
	DimProduct: {
		{SectionProblemFit, 0.5},
		{SectionExecution, 0.5},
	},
	DimGoToMarket: {
		{SectionGoToMarket, 0.7},
		{SectionCustomerUnderstanding, 0.3},
	},
	DimFinancial: {
		{SectionFinancialHealth, 1.0},
	},
	DimTeam: {
		{SectionExecution, 0.4},
		{SectionResilience, 0.6},
	},
	DimTraction: {
		{SectionCustomerUnderstanding, 0.5},
		{SectionFinancialHealth, 0.5},
	},
}

// ValidateSubmission checks that every required section is present with a
// usable rating and at least one non-blank answer. Incomplete submissions are
// rejected rather than scored low: a defaulted zero would misrepresent the
// founder's standing.
func ValidateSubmission(sub AssessmentSubmission) error {
	problems := map[string]string{}

	for _, name := range RequiredSections {
		resp, ok := sub.Sections[name]
		if !ok {
			problems[name] = "section missing"
			continue
		}
		if resp.Rating < 0 || resp.Rating > maxRating {
			problems[name] = "rating must be between 0 and 10"
			continue
		}
		if !hasContent(resp) {
			problems[name] = "at least one answer is required"
		}
	}

	if len(problems) > 0 {
		return apperrors.NewValidationErrorWithMap(problems)
	}
	return nil
}

// sectionScore converts one completed section to a 0-100 score: the
// self-rating provides the base, the answer quality factor discounts it.
func sectionScore(resp SectionResponse) float64 {
	base := resp.Rating / maxRating * 100
	return clamp(base*qualityFactor(resp.Answers), 0, 100)
}

// ScoreDimensions maps a completed submission to six dimension scores in
// [0,100] plus deltas against the previous snapshot's scores. Pure function
// of its inputs; the caller owns persistence.
func ScoreDimensions(sub AssessmentSubmission, prev *DimensionScores) (DimensionResult, error) {
	if err := ValidateSubmission(sub); err != nil {
		return DimensionResult{}, err
	}

	sections := make(map[string]float64, len(RequiredSections))
	for _, name := range RequiredSections {
		sections[name] = sectionScore(sub.Sections[name])
	}

	var scores DimensionScores
	for dim, blend := range dimensionBlend {
		v := 0.0
		for _, sw := range blend {
			v += sections[sw.section] * sw.weight
		}
		scores.Set(dim, clamp(v, 0, 100))
	}

	var deltas DimensionDeltas
	if prev != nil {
		deltas = DimensionDeltas{
			Market:     scores.Market - prev.Market,
			Product:    scores.Product - prev.Product,
			GoToMarket: scores.GoToMarket - prev.GoToMarket,
			Financial:  scores.Financial - prev.Financial,
			Team:       scores.Team - prev.Team,
			Traction:   scores.Traction - prev.Traction,
		}
	}

	return DimensionResult{Scores: scores, Deltas: deltas}, nil
}
