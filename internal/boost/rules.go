package boost

import (
	"sort"

	"github.com/mehtab-afsar/qcombinator-backend/internal/scoring"
)

// Rule describes how completing one artifact type nudges a score.
type Rule struct {
	ArtifactType string  `json:"artifact_type"`
	Dimension    string  `json:"dimension"`
	Points       float64 `json:"points"`
	Label        string  `json:"label"`
}

// rules maps each recognized artifact type to the dimension it strengthens.
// Points are deliberately small relative to assessment scoring: completing
// an artifact is a signal of progress, not a substitute for reassessment.
var rules = map[string]Rule{
	"pmf_survey": {
		ArtifactType: "pmf_survey",
		Dimension:    scoring.DimProduct,
		Points:       4,
		Label:        "Product-market fit survey",
	},
	"financial_model": {
		ArtifactType: "financial_model",
		Dimension:    scoring.DimFinancial,
		Points:       5,
		Label:        "Financial model",
	},
	"hiring_plan": {
		ArtifactType: "hiring_plan",
		Dimension:    scoring.DimTeam,
		Points:       4,
		Label:        "Hiring plan",
	},
	"gtm_playbook": {
		ArtifactType: "gtm_playbook",
		Dimension:    scoring.DimGoToMarket,
		Points:       5,
		Label:        "Go-to-market playbook",
	},
	"pricing_strategy": {
		ArtifactType: "pricing_strategy",
		Dimension:    scoring.DimFinancial,
		Points:       3,
		Label:        "Pricing strategy",
	},
	"customer_interview_guide": {
		ArtifactType: "customer_interview_guide",
		Dimension:    scoring.DimMarket,
		Points:       3,
		Label:        "Customer interview guide",
	},
	"investor_update": {
		ArtifactType: "investor_update",
		Dimension:    scoring.DimTraction,
		Points:       3,
		Label:        "Investor update",
	},
	"sales_pipeline": {
		ArtifactType: "sales_pipeline",
		Dimension:    scoring.DimTraction,
		Points:       4,
		Label:        "Sales pipeline",
	},
	"competitive_analysis": {
		ArtifactType: "competitive_analysis",
		Dimension:    scoring.DimMarket,
		Points:       4,
		Label:        "Competitive analysis",
	},
}

// RuleFor returns the boost rule for an artifact type
func RuleFor(artifactType string) (Rule, bool) {
	rule, ok := rules[artifactType]
	return rule, ok
}

// ArtifactTypes returns all recognized artifact types, sorted
func ArtifactTypes() []string {
	types := make([]string, 0, len(rules))
	for t := range rules {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
