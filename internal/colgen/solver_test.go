package colgen

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightpool/internal/model"
	"freightpool/internal/route"
)

var (
	day          = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	chicago      = model.Location{Lat: 41.8781, Lon: -87.6298}
	indianapolis = model.Location{Lat: 39.7684, Lon: -86.1581}
	dallas       = model.Location{Lat: 32.7767, Lon: -96.7970}
	houston      = model.Location{Lat: 29.7604, Lon: -95.3698}
)

func at(h float64) time.Time { return day.Add(time.Duration(h * float64(time.Hour))) }

func ship(id string, from, to model.Location, weight, feet float64) model.Shipment {
	return model.Shipment{
		ID:             id,
		Origin:         from,
		Destination:    to,
		PickupWindow:   model.MustTimeWindow(at(8), at(12)),
		DeliveryWindow: model.MustTimeWindow(at(9), at(23)),
		WeightLbs:      weight,
		LinearFeet:     feet,
		Equipment:      model.DryVan,
	}
}

func lanes(n int) []model.Shipment {
	var out []model.Shipment
	for i := 0; i < n; i++ {
		out = append(out, ship(fmt.Sprintf("chi%d", i), chicago, indianapolis, 4000, 8))
		out = append(out, ship(fmt.Sprintf("dal%d", i), dallas, houston, 4000, 8))
	}
	return out
}

func solve(t *testing.T, shipments []model.Shipment, cfg Config) Result {
	t.Helper()
	res, err := Solve(context.Background(), shipments, nil, route.MustBuilder(route.DefaultParams()), cfg)
	require.NoError(t, err)
	return res
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TimeLimit = 0
	return cfg
}

func TestSolveNeverWorseThanNaive(t *testing.T) {
	res := solve(t, lanes(4), testConfig())

	assert.Equal(t, StatusConverged, res.Status)
	assert.LessOrEqual(t, res.TotalCost, res.NaiveCost+1e-9)
	assert.Less(t, res.TotalCost, res.NaiveCost)
	assert.Len(t, res.Routes, 2)
	assert.Empty(t, res.Unassigned)
}

func TestSolveCoversEachShipmentOnce(t *testing.T) {
	shipments := lanes(5)
	res := solve(t, shipments, testConfig())

	seen := map[string]int{}
	for _, r := range res.Routes {
		require.NoError(t, r.CheckPairing())
		for _, id := range r.ShipmentIDs {
			seen[id]++
		}
	}
	for _, id := range res.Unassigned {
		seen[id]++
	}
	require.Len(t, seen, len(shipments))
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestSolveHaltsWithinIterationCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 1
	res := solve(t, lanes(4), cfg)

	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, StatusIterationLimit, res.Status)
	assert.LessOrEqual(t, res.TotalCost, res.NaiveCost+1e-9)
}

func TestSolveBounds(t *testing.T) {
	res := solve(t, lanes(3), testConfig())

	assert.GreaterOrEqual(t, res.Gap, 0.0)
	assert.LessOrEqual(t, res.Gap, 1.0)
	assert.LessOrEqual(t, res.LowerBound, res.UpperBound)
	assert.InDelta(t, res.TotalCost, res.UpperBound, 1e-6)
}

func TestSolveInfeasibleShipmentUnassigned(t *testing.T) {
	shipments := append(lanes(1), ship("heavy", chicago, indianapolis, 60000, 10))
	res := solve(t, shipments, testConfig())

	assert.Equal(t, []string{"heavy"}, res.Unassigned)
	for _, r := range res.Routes {
		assert.NotContains(t, r.ShipmentIDs, "heavy")
	}
}

func TestSolveRejectsInvalidShipments(t *testing.T) {
	bad := ship("bad", chicago, indianapolis, -1, 8)
	res := solve(t, append(lanes(1), bad), testConfig())

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "bad", res.Rejected[0].ID)
	assert.Len(t, res.Routes, 2)
}

func TestSolveDeterministic(t *testing.T) {
	a := solve(t, lanes(6), testConfig())
	b := solve(t, lanes(6), testConfig())

	assert.Equal(t, a.TotalCost, b.TotalCost)
	assert.Equal(t, a.Columns, b.Columns)
}

func TestSolveAssignsCarriers(t *testing.T) {
	carriers := []model.Carrier{
		{ID: "reefer", Equipment: model.Reefer, MaxWeightLbs: 45000, MaxLinearFeet: 53},
		{ID: "van", Equipment: model.DryVan, MaxWeightLbs: 45000, MaxLinearFeet: 53},
	}
	res, err := Solve(context.Background(), lanes(1)[:1], carriers, route.MustBuilder(route.DefaultParams()), testConfig())
	require.NoError(t, err)

	require.Len(t, res.Routes, 1)
	assert.Equal(t, "van", res.Routes[0].VehicleID)
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Solve(ctx, lanes(2), nil, route.MustBuilder(route.DefaultParams()), testConfig())
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, res.Status)
	assert.Empty(t, res.Unassigned)
	assert.InDelta(t, res.NaiveCost, res.TotalCost, 1e-9)
}

func TestSolveEmpty(t *testing.T) {
	res := solve(t, nil, testConfig())
	assert.Empty(t, res.Routes)
	assert.Equal(t, StatusConverged, res.Status)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxShipmentsPerRoute = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.CostPerMile = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := Solve(context.Background(), nil, nil, route.MustBuilder(route.DefaultParams()), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
