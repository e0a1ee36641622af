package integrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightpool/internal/model"
)

func TestLoadFleet(t *testing.T) {
	doc := `
carriers:
  - id: van-1
    name: Lakeshore Freight
    equipment: dry_van
    maxWeightLbs: 45000
    maxLinearFeet: 53
    ratePerMile: 2.2
    onTimePct: 0.97
    location: {lat: 41.88, lon: -87.63, city: Chicago, state: IL}
  - id: reefer-1
    equipment: reefer
    maxWeightLbs: 42000
    maxLinearFeet: 53
`
	fleet, err := LoadFleet(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, fleet, 2)
	assert.Equal(t, "van-1", fleet[0].ID)
	assert.Equal(t, model.DryVan, fleet[0].Equipment)
	assert.Equal(t, 2.2, fleet[0].RatePerMile)
	assert.Equal(t, "Chicago", fleet[0].Location.City)
	assert.Equal(t, model.Reefer, fleet[1].Equipment)
}

func TestLoadFleetRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": "carriers:\n  - id: a\n    colour: red\n",
		"invalid":       "carriers:\n  - id: a\n    equipment: dry_van\n    maxWeightLbs: 0\n    maxLinearFeet: 53\n",
		"duplicate":     "carriers:\n  - {id: a, equipment: dry_van, maxWeightLbs: 1, maxLinearFeet: 1}\n  - {id: a, equipment: dry_van, maxWeightLbs: 1, maxLinearFeet: 1}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFleet(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFleetEmpty(t *testing.T) {
	fleet, err := LoadFleet(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, fleet)
}
