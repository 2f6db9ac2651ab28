package scoring

import (
	"fmt"
	"math"

	apperrors "github.com/mehtab-afsar/qcombinator-backend/internal/errors"
)

// Sector identifies a startup's business model for weight selection.
type Sector string

const (
	SectorB2BSaaS     Sector = "b2b_saas"
	SectorConsumer    Sector = "consumer"
	SectorMarketplace Sector = "marketplace"
	SectorFintech     Sector = "fintech"
	SectorHealthtech  Sector = "healthtech"
	SectorDeeptech    Sector = "deeptech"
	SectorDefault     Sector = "default"
)

// WeightVector holds the six dimension weights for one sector. Weights must
// sum to 1.0 within tolerance.
type WeightVector struct {
	Market     float64
	Product    float64
	GoToMarket float64
	Financial  float64
	Team       float64
	Traction   float64
}

const weightSumTolerance = 0.001

// Sum returns the total of all weights.
func (w WeightVector) Sum() float64 {
	return w.Market + w.Product + w.GoToMarket + w.Financial + w.Team + w.Traction
}

// Validate checks that weights sum to 1.0 and none are negative.
func (w WeightVector) Validate() error {
	if math.Abs(w.Sum()-1.0) > weightSumTolerance {
		return fmt.Errorf("weights sum to %.4f, expected 1.0", w.Sum())
	}
	for _, v := range []float64{w.Market, w.Product, w.GoToMarket, w.Financial, w.Team, w.Traction} {
		if v < 0 {
			return fmt.Errorf("negative weight %.4f", v)
		}
	}
	return nil
}

// sectorWeights is the static sector weight table. Signal importance differs
// by business model: healthtech and deeptech weigh market and team heavily
// while early traction carries little signal; consumer leans on product and
// distribution.
var sectorWeights = map[Sector]WeightVector{
	SectorB2BSaaS:     {Market: 0.20, Product: 0.18, GoToMarket: 0.20, Financial: 0.18, Team: 0.14, Traction: 0.10},
	SectorConsumer:    {Market: 0.16, Product: 0.22, GoToMarket: 0.22, Financial: 0.10, Team: 0.12, Traction: 0.18},
	SectorMarketplace: {Market: 0.22, Product: 0.16, GoToMarket: 0.22, Financial: 0.12, Team: 0.12, Traction: 0.16},
	SectorFintech:     {Market: 0.18, Product: 0.18, GoToMarket: 0.14, Financial: 0.22, Team: 0.16, Traction: 0.12},
	SectorHealthtech:  {Market: 0.26, Product: 0.20, GoToMarket: 0.10, Financial: 0.14, Team: 0.24, Traction: 0.06},
	SectorDeeptech:    {Market: 0.24, Product: 0.24, GoToMarket: 0.08, Financial: 0.14, Team: 0.26, Traction: 0.04},
	SectorDefault:     {Market: 0.18, Product: 0.17, GoToMarket: 0.17, Financial: 0.16, Team: 0.16, Traction: 0.16},
}

// Sectors returns every known sector key.
func Sectors() []Sector {
	out := make([]Sector, 0, len(sectorWeights))
	for s := range sectorWeights {
		out = append(out, s)
	}
	return out
}

// WeightsFor returns the weight vector for a sector. An empty sector selects
// the default profile; an unrecognized one is a configuration error rather
// than a silent fallback, since substituting another weight profile would
// misrepresent the founder's standing.
func WeightsFor(sector Sector) (WeightVector, error) {
	if sector == "" {
		sector = SectorDefault
	}
	w, ok := sectorWeights[sector]
	if !ok {
		return WeightVector{}, apperrors.NewConfigurationError(
			fmt.Sprintf("unknown sector %q", sector), nil)
	}
	return w, nil
}

// CombineOverall combines six dimension scores into one overall score using
// the sector's weight vector: round(clamp(sum(score_i * w_i), 0, 100)).
func CombineOverall(ds DimensionScores, sector Sector) (int, error) {
	w, err := WeightsFor(sector)
	if err != nil {
		return 0, err
	}

	total := ds.Market*w.Market +
		ds.Product*w.Product +
		ds.GoToMarket*w.GoToMarket +
		ds.Financial*w.Financial +
		ds.Team*w.Team +
		ds.Traction*w.Traction

	return int(math.Round(clamp(total, 0, 100))), nil
}
