package route

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightpool/internal/model"
)

var (
	day          = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	chicago      = model.Location{Lat: 41.8781, Lon: -87.6298, City: "Chicago", State: "IL"}
	indianapolis = model.Location{Lat: 39.7684, Lon: -86.1581, City: "Indianapolis", State: "IN"}
	trailer      = Limits{MaxWeightLbs: 45000, MaxLinearFeet: 53}
)

func at(h float64) time.Time { return day.Add(time.Duration(h * float64(time.Hour))) }

func lane(id string, weight, feet float64) model.Shipment {
	return model.Shipment{
		ID:             id,
		Origin:         chicago,
		Destination:    indianapolis,
		PickupWindow:   model.MustTimeWindow(at(8), at(12)),
		DeliveryWindow: model.MustTimeWindow(at(11), at(20)),
		WeightLbs:      weight,
		LinearFeet:     feet,
		Equipment:      model.DryVan,
	}
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	ie, ok := AsInfeasible(err)
	require.True(t, ok, "expected *InfeasibleError, got %v", err)
	return ie.Reason
}

func TestBuildSameLanePair(t *testing.T) {
	b := MustBuilder(DefaultParams())
	shipments := []model.Shipment{lane("a", 10000, 15), lane("b", 10000, 15)}
	r, err := b.Build(shipments, trailer, nil)
	require.NoError(t, err)
	require.NoError(t, r.CheckPairing())
	assert.Len(t, r.Stops, 4)
	assert.ElementsMatch(t, []string{"a", "b"}, r.ShipmentIDs)
	assert.InDelta(t, chicago.MilesTo(indianapolis), r.DistanceMiles, 1e-6)
	assert.Less(t, r.DurationHours, 14.0)
	assert.InDelta(t, 30.0/53.0, r.FootprintUtilization, 1e-9)
	assert.InDelta(t, 30.0/53.0, r.Utilization, 1e-9)
}

func TestBuildReturnsToDepot(t *testing.T) {
	p := DefaultParams()
	p.ReturnToDepot = true
	b := MustBuilder(p)
	depot := chicago
	r, err := b.Build([]model.Shipment{lane("a", 5000, 10)}, trailer, &depot)
	require.NoError(t, err)
	assert.InDelta(t, 2*chicago.MilesTo(indianapolis), r.DistanceMiles, 1e-6)
}

func TestBuildCapacityExceeded(t *testing.T) {
	b := MustBuilder(DefaultParams())
	_, err := b.Build([]model.Shipment{lane("a", 30000, 20), lane("b", 30000, 20)}, trailer, nil)
	assert.Equal(t, CapacityExceeded, reasonOf(t, err))

	_, err = b.Build([]model.Shipment{lane("big", 50000, 20)}, trailer, nil)
	assert.Equal(t, CapacityExceeded, reasonOf(t, err))
}

func TestBuildTimeWindowViolated(t *testing.T) {
	b := MustBuilder(DefaultParams())
	s := lane("a", 1000, 5)
	s.DeliveryWindow = model.MustTimeWindow(at(8), at(10))
	_, err := b.Build([]model.Shipment{s}, trailer, nil)
	assert.Equal(t, TimeWindowViolated, reasonOf(t, err))
}

func TestWaitingBoundedBySlack(t *testing.T) {
	s := lane("a", 1000, 5)
	s.DeliveryWindow = model.MustTimeWindow(at(20), at(22))

	_, err := MustBuilder(DefaultParams()).Build([]model.Shipment{s}, trailer, nil)
	assert.Equal(t, TimeWindowViolated, reasonOf(t, err))

	p := DefaultParams()
	p.MaxWaitMinutes = 600
	r, err := MustBuilder(p).Build([]model.Shipment{s}, trailer, nil)
	require.NoError(t, err)
	last := r.Stops[len(r.Stops)-1]
	assert.True(t, last.ServiceStart.Equal(at(20)))
	assert.True(t, last.Arrival.Before(last.ServiceStart))
}

func TestBuildMaxDistance(t *testing.T) {
	b := MustBuilder(DefaultParams())
	s := lane("a", 1000, 5)
	s.Origin = model.Location{Lat: 34.0522, Lon: -118.2437}
	s.Destination = model.Location{Lat: 40.7128, Lon: -74.0060}
	_, err := b.Build([]model.Shipment{s}, trailer, nil)
	assert.Equal(t, MaxDistanceExceeded, reasonOf(t, err))
}

func TestBuildMaxDuration(t *testing.T) {
	p := DefaultParams()
	p.MaxDurationHours = 2
	_, err := MustBuilder(p).Build([]model.Shipment{lane("a", 1000, 5)}, trailer, nil)
	assert.Equal(t, MaxDurationExceeded, reasonOf(t, err))
}

func TestEvaluateRejectsDeliveryFirst(t *testing.T) {
	b := MustBuilder(DefaultParams())
	all := []model.Shipment{lane("a", 1000, 5)}
	_, err := b.Evaluate(all, []Visit{{0, model.Delivery}, {0, model.Pickup}}, trailer, nil)
	assert.Equal(t, InvalidSequence, reasonOf(t, err))

	_, err = b.Evaluate(all, []Visit{{0, model.Pickup}}, trailer, nil)
	assert.Equal(t, InvalidSequence, reasonOf(t, err))

	_, err = b.Evaluate(all, nil, trailer, nil)
	assert.Equal(t, EmptyRoute, reasonOf(t, err))
}

func TestInsertNeverShortens(t *testing.T) {
	b := MustBuilder(DefaultParams())
	all := []model.Shipment{lane("a", 1000, 5), lane("b", 1000, 5)}
	all[1].Origin = model.Location{Lat: 41.80, Lon: -87.70}
	seq, _, err := b.Sequence(all, []int{0}, trailer, nil)
	require.NoError(t, err)
	ins, err := b.Insert(all, seq, 1, trailer, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ins.Added, -1e-6)
	assert.Len(t, ins.Visits, 4)
}

// Every route the builder accepts must satisfy the invariants it promises.
func TestBuildInvariantsRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := DefaultParams()
	b := MustBuilder(p)
	for trial := 0; trial < 60; trial++ {
		n := 1 + rng.Intn(5)
		shipments := make([]model.Shipment, n)
		for i := range shipments {
			s := lane(fmt.Sprintf("s%d", i), 2000+rng.Float64()*15000, 5+rng.Float64()*20)
			s.Origin.Lat += rng.Float64()*0.5 - 0.25
			s.Origin.Lon += rng.Float64()*0.5 - 0.25
			s.Destination.Lat += rng.Float64()*0.5 - 0.25
			s.Destination.Lon += rng.Float64()*0.5 - 0.25
			open := 6 + rng.Float64()*4
			s.PickupWindow = model.MustTimeWindow(at(open), at(open+4))
			s.DeliveryWindow = model.MustTimeWindow(at(open+2), at(open+14))
			shipments[i] = s
		}
		r, err := b.Build(shipments, trailer, nil)
		if err != nil {
			_, ok := AsInfeasible(err)
			require.True(t, ok, "trial %d: untyped error %v", trial, err)
			continue
		}
		require.NoError(t, r.CheckPairing(), "trial %d", trial)
		require.Len(t, r.Stops, 2*n)
		byID := map[string]model.Shipment{}
		for _, s := range shipments {
			byID[s.ID] = s
		}
		var w, f float64
		for _, st := range r.Stops {
			s := byID[st.ShipmentID]
			if st.Kind == model.Pickup {
				w += s.WeightLbs
				f += s.LinearFeet
			} else {
				w -= s.WeightLbs
				f -= s.LinearFeet
			}
			require.LessOrEqual(t, w, trailer.MaxWeightLbs+1e-6)
			require.LessOrEqual(t, f, trailer.MaxLinearFeet+1e-6)
			require.False(t, st.Arrival.After(st.Window.Latest()), "late at %s", st.ShipmentID)
			require.LessOrEqual(t, st.ServiceStart.Sub(st.Arrival), time.Duration(p.MaxWaitMinutes)*time.Minute)
		}
		require.LessOrEqual(t, r.DurationHours, p.MaxDurationHours+1e-9)
		require.LessOrEqual(t, r.DistanceMiles, p.MaxDistanceMiles+1e-9)
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := MustBuilder(DefaultParams())
	shipments := []model.Shipment{lane("a", 8000, 12), lane("b", 9000, 10), lane("c", 7000, 9)}
	shipments[1].Origin = model.Location{Lat: 41.95, Lon: -87.75}
	shipments[2].Destination = model.Location{Lat: 39.70, Lon: -86.30}
	r1, err := b.Build(shipments, trailer, nil)
	require.NoError(t, err)
	r2, err := b.Build(shipments, trailer, nil)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	p.SpeedMph = 0
	_, err := NewBuilder(p)
	assert.Error(t, err)
}
