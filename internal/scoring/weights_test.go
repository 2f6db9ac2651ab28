package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mehtab-afsar/qcombinator-backend/internal/errors"
)

func TestSectorWeightsSumToOne(t *testing.T) {
	for sector, w := range sectorWeights {
		t.Run(string(sector), func(t *testing.T) {
			assert.NoError(t, w.Validate())
			assert.InDelta(t, 1.0, w.Sum(), weightSumTolerance)
		})
	}
}

func TestWeightsFor(t *testing.T) {
	tests := []struct {
		name    string
		sector  Sector
		want    Sector
		wantErr bool
	}{
		{"known sector", SectorB2BSaaS, SectorB2BSaaS, false},
		{"empty sector falls back to default", "", SectorDefault, false},
		{"explicit default", SectorDefault, SectorDefault, false},
		{"unknown sector is rejected", "crypto_gaming", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := WeightsFor(tt.sector)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsConfiguration(err), "unknown sector should be a configuration error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sectorWeights[tt.want], w)
		})
	}
}

func TestCombineOverall(t *testing.T) {
	scores := DimensionScores{
		Market:     80,
		Product:    70,
		GoToMarket: 60,
		Financial:  50,
		Team:       90,
		Traction:   40,
	}

	tests := []struct {
		name   string
		scores DimensionScores
		sector Sector
		want   int
	}{
		{"b2b saas profile", scores, SectorB2BSaaS, 66},
		{"empty sector uses default weights", scores, "", 65},
		{"all zero floors at 0", DimensionScores{}, SectorB2BSaaS, 0},
		{"all max caps at 100", DimensionScores{Market: 100, Product: 100, GoToMarket: 100, Financial: 100, Team: 100, Traction: 100}, SectorConsumer, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CombineOverall(tt.scores, tt.sector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCombineOverallUnknownSector(t *testing.T) {
	_, err := CombineOverall(DimensionScores{Market: 50}, "space_mining")
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestSectorsCoversWeightTable(t *testing.T) {
	sectors := Sectors()
	assert.Len(t, sectors, len(sectorWeights))
	for _, s := range sectors {
		_, ok := sectorWeights[s]
		assert.True(t, ok, "Sectors() returned %q which has no weight vector", s)
	}
}

func TestWeightVectorValidate(t *testing.T) {
	bad := WeightVector{Market: 0.5, Product: 0.5, GoToMarket: 0.5}
	assert.Error(t, bad.Validate())

	negative := WeightVector{Market: 1.2, Product: -0.2}
	assert.Error(t, negative.Validate())
}
