package scoring

// Section identifiers for a founder assessment submission.
const (
	SectionProblemFit            = "problem_fit"
	SectionCustomerUnderstanding = "customer_understanding"
	SectionExecution             = "execution"
	SectionMarketRealism         = "market_realism"
	SectionGoToMarket            = "go_to_market"
	SectionFinancialHealth       = "financial_health"
	SectionResilience            = "resilience"
)

// RequiredSections lists every section a submission must contain before it
// can be scored.
var RequiredSections = []string{
	SectionProblemFit,
	SectionCustomerUnderstanding,
	SectionExecution,
	SectionMarketRealism,
	SectionGoToMarket,
	SectionFinancialHealth,
	SectionResilience,
}

// SectionResponse is one assessment section: a numeric self-rating plus the
// founder's free-text answers.
type SectionResponse struct {
	Rating  float64  `json:"rating"`
	Answers []string `json:"answers"`
}

// AssessmentSubmission is a completed founder assessment.
type AssessmentSubmission struct {
	Sector   string                     `json:"sector"`
	Sections map[string]SectionResponse `json:"sections"`
}

// DimensionScores holds the six 0-100 sub-scores of a founder profile.
type DimensionScores struct {
	Market     float64 `json:"market"`
	Product    float64 `json:"product"`
	GoToMarket float64 `json:"go_to_market"`
	Financial  float64 `json:"financial"`
	Team       float64 `json:"team"`
	Traction   float64 `json:"traction"`
}

// DimensionDeltas mirrors DimensionScores with per-dimension movement since
// the previous snapshot.
type DimensionDeltas struct {
	Market     float64 `json:"market"`
	Product    float64 `json:"product"`
	GoToMarket float64 `json:"go_to_market"`
	Financial  float64 `json:"financial"`
	Team       float64 `json:"team"`
	Traction   float64 `json:"traction"`
}

// DimensionResult is the output of the dimension scorer.
type DimensionResult struct {
	Scores DimensionScores `json:"dimension_scores"`
	Deltas DimensionDeltas `json:"deltas"`
}

// Dimension name constants used for benchmark lookups and boost rules.
const (
	DimMarket     = "market"
	DimProduct    = "product"
	DimGoToMarket = "go_to_market"
	DimFinancial  = "financial"
	DimTeam       = "team"
	DimTraction   = "traction"
	DimOverall    = "overall"
)

// Dimensions lists the six scored dimensions in canonical order.
var Dimensions = []string{
	DimMarket,
	DimProduct,
	DimGoToMarket,
	DimFinancial,
	DimTeam,
	DimTraction,
}

// Get returns a single dimension score by name; ok is false for an
// unrecognized dimension.
func (d DimensionScores) Get(name string) (float64, bool) {
	switch name {
	case DimMarket:
		return d.Market, true
	case DimProduct:
		return d.Product, true
	case DimGoToMarket:
		return d.GoToMarket, true
	case DimFinancial:
		return d.Financial, true
	case DimTeam:
		return d.Team, true
	case DimTraction:
		return d.Traction, true
	}
	return 0, false
}

// Set assigns a single dimension score by name and reports whether the
// dimension exists.
func (d *DimensionScores) Set(name string, value float64) bool {
	switch name {
	case DimMarket:
		d.Market = value
	case DimProduct:
		d.Product = value
	case DimGoToMarket:
		d.GoToMarket = value
	case DimFinancial:
		d.Financial = value
	case DimTeam:
		d.Team = value
	case DimTraction:
		d.Traction = value
	default:
		return false
	}
	return true
}
