package pooling

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
	chicago      = model.Location{Lat: 41.8781, Lon: -87.6298, City: "Chicago", State: "IL"}
	indianapolis = model.Location{Lat: 39.7684, Lon: -86.1581, City: "Indianapolis", State: "IN"}
)

func at(h float64) time.Time { return day.Add(time.Duration(h * float64(time.Hour))) }

func shipment(id string, open float64, weight, feet float64) model.Shipment {
	return model.Shipment{
		ID:             id,
		Origin:         chicago,
		Destination:    indianapolis,
		PickupWindow:   model.MustTimeWindow(at(open), at(open+4)),
		DeliveryWindow: model.MustTimeWindow(at(11), at(22)),
		WeightLbs:      weight,
		LinearFeet:     feet,
		Equipment:      model.DryVan,
	}
}

func newMatcher(t *testing.T, opts ...Option) *Matcher {
	t.Helper()
	m, err := NewMatcher(DefaultConfig(), route.MustBuilder(route.DefaultParams()), opts...)
	require.NoError(t, err)
	return m
}

func TestSameLanePairYieldsOneOpportunity(t *testing.T) {
	m := newMatcher(t)
	res := m.FindOpportunities(context.Background(), []model.Shipment{
		shipment("a", 8, 10000, 15),
		shipment("b", 9, 10000, 15),
	}, nil)

	require.Len(t, res.Opportunities, 1)
	op := res.Opportunities[0]
	assert.ElementsMatch(t, []string{"a", "b"}, op.ShipmentIDs)
	assert.Greater(t, op.TotalSavings(), 0.0)
	assert.False(t, op.Estimated)
	require.NotNil(t, op.Route)
	require.NoError(t, op.Route.CheckPairing())
	assert.InDelta(t, 0.75, op.TemporalScore, 1e-9)
	assert.InDelta(t, 1.0, op.GeographicScore, 1e-9)
	assert.GreaterOrEqual(t, op.Probability, DefaultConfig().MinPoolingProbability)
	assert.Equal(t, 2, res.PooledCount)
	assert.Equal(t, 0, res.UnpooledCount)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestOversizedFootprintYieldsNothing(t *testing.T) {
	m := newMatcher(t)
	res := m.FindOpportunities(context.Background(), []model.Shipment{
		shipment("a", 8, 10000, 30),
		shipment("b", 8, 10000, 30),
	}, nil)
	assert.Empty(t, res.Opportunities)
	assert.Equal(t, 2, res.UnpooledCount)
}

func TestSingleShipmentIsEmptyResult(t *testing.T) {
	m := newMatcher(t)
	res := m.FindOpportunities(context.Background(), []model.Shipment{shipment("solo", 8, 10000, 15)}, nil)
	assert.Empty(t, res.Opportunities)
	assert.Equal(t, 1, res.UnpooledCount)
	assert.Equal(t, 0, res.PooledCount)
}

func TestPoolsRespectSizeCapAndMutualCompatibility(t *testing.T) {
	m := newMatcher(t)
	var ships []model.Shipment
	for i := 0; i < 10; i++ {
		ships = append(ships, shipment(fmt.Sprintf("s%02d", i), 8, 5000, 10))
	}
	res := m.FindOpportunities(context.Background(), ships, nil)
	require.NotEmpty(t, res.Opportunities)
	byID := map[string]model.Shipment{}
	for _, s := range ships {
		byID[s.ID] = s
	}
	seen := map[string]bool{}
	cfg := m.Config()
	for _, op := range res.Opportunities {
		assert.LessOrEqual(t, len(op.ShipmentIDs), cfg.MaxShipmentsPerPool)
		for i, a := range op.ShipmentIDs {
			assert.False(t, seen[a], "%s pooled twice", a)
			seen[a] = true
			for _, b := range op.ShipmentIDs[i+1:] {
				_, ok := cfg.pairScore(byID[a], byID[b])
				assert.True(t, ok, "%s and %s incompatible", a, b)
			}
		}
	}
	assert.Equal(t, 10, res.PooledCount)
	for i := 1; i < len(res.Opportunities); i++ {
		assert.GreaterOrEqual(t, res.Opportunities[i-1].SavingsPercent, res.Opportunities[i].SavingsPercent)
	}
}

func TestMatchIsIdempotent(t *testing.T) {
	m := newMatcher(t)
	var ships []model.Shipment
	for i := 0; i < 12; i++ {
		s := shipment(fmt.Sprintf("s%02d", i), 7+float64(i%3), 3000+float64(i)*700, 6+float64(i%5)*3)
		s.Origin.Lat += float64(i%4) * 0.05
		s.Destination.Lon += float64(i%3) * 0.05
		ships = append(ships, s)
	}
	first := m.FindOpportunities(context.Background(), ships, nil)
	second := m.FindOpportunities(context.Background(), ships, nil)
	assert.Equal(t, first.Opportunities, second.Opportunities)
	assert.Equal(t, first.PooledCount, second.PooledCount)
}

func TestPredictorOverridesHeuristic(t *testing.T) {
	ships := []model.Shipment{shipment("a", 8, 10000, 15), shipment("b", 9, 10000, 15)}

	low := newMatcher(t, WithPredictor(StaticPredictor{"a,b": 0.2}))
	assert.Empty(t, low.FindOpportunities(context.Background(), ships, nil).Opportunities)

	high := newMatcher(t, WithPredictor(StaticPredictor{"a,b": 0.9}))
	res := high.FindOpportunities(context.Background(), ships, nil)
	require.Len(t, res.Opportunities, 1)
	assert.InDelta(t, 0.9, res.Opportunities[0].Probability, 1e-12)
}

func TestInfeasibleRouteFallsBackToEstimate(t *testing.T) {
	a, b := shipment("a", 8, 10000, 15), shipment("b", 8, 10000, 15)
	a.DeliveryWindow = model.MustTimeWindow(at(8), at(10))
	b.DeliveryWindow = model.MustTimeWindow(at(8), at(10))
	res := newMatcher(t).FindOpportunities(context.Background(), []model.Shipment{a, b}, nil)
	require.Len(t, res.Opportunities, 1)
	op := res.Opportunities[0]
	assert.True(t, op.Estimated)
	assert.Nil(t, op.Route)
	d := chicago.MilesTo(indianapolis)
	assert.InDelta(t, 2*d*0.7*2.5+50, op.PooledCost, 1e-6)
}

func TestInvalidShipmentRejectedWithoutAbortingBatch(t *testing.T) {
	bad := shipment("bad", 8, 0, 15)
	res := newMatcher(t).FindOpportunities(context.Background(), []model.Shipment{
		shipment("a", 8, 10000, 15), bad, shipment("b", 9, 10000, 15),
	}, nil)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "bad", res.Rejected[0].ID)
	assert.Len(t, res.Opportunities, 1)
	assert.Equal(t, 1, res.UnpooledCount)
}

func TestCarrierChosenByPerformance(t *testing.T) {
	fleet := []model.Carrier{
		{ID: "slow", Equipment: model.DryVan, MaxWeightLbs: 45000, MaxLinearFeet: 53, Location: chicago, OnTimePct: 0.80},
		{ID: "fast", Equipment: model.DryVan, MaxWeightLbs: 45000, MaxLinearFeet: 53, Location: chicago, OnTimePct: 0.97},
		{ID: "reefer", Equipment: model.Reefer, MaxWeightLbs: 45000, MaxLinearFeet: 53, Location: chicago, OnTimePct: 0.99},
	}
	res := newMatcher(t).FindOpportunities(context.Background(), []model.Shipment{
		shipment("a", 8, 10000, 15), shipment("b", 9, 10000, 15),
	}, fleet)
	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, "fast", res.Opportunities[0].CarrierID)
	assert.Equal(t, "fast", res.Opportunities[0].Route.VehicleID)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newMatcher(t).FindOpportunities(ctx, []model.Shipment{
		shipment("a", 8, 10000, 15), shipment("b", 9, 10000, 15),
	}, nil)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Empty(t, res.Opportunities)
}

func TestUtilizationFit(t *testing.T) {
	c := DefaultConfig()
	assert.InDelta(t, 1.0, c.utilizationFit(0, 0.8*53), 1e-9)
	assert.InDelta(t, 0.5, c.utilizationFit(0, 0.99*53), 1e-9)
	assert.InDelta(t, 0.5/0.7, c.utilizationFit(0, 0.5*53), 1e-9)
	assert.InDelta(t, 1.0, c.utilizationFit(0.8*45000, 10), 1e-9)
}
