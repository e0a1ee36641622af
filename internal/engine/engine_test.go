package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightpool/internal/config"
	"freightpool/internal/model"
	"freightpool/internal/pooling"
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

func quiet() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

func newEngine(t *testing.T, mutate func(*config.Optimizer), opts ...Option) *Engine {
	t.Helper()
	cfg := config.DefaultOptimizer()
	cfg.ALNS.MaxIterations = 200
	cfg.ALNS.TimeLimit = 0
	cfg.ColGen.TimeLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg, append([]Option{WithLogger(quiet())}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultOptimizer()
	cfg.CostPerMile = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestMatchPoolsSameLane(t *testing.T) {
	e := newEngine(t, nil)
	shipments := []model.Shipment{
		ship("a", chicago, indianapolis, 15000, 20),
		ship("b", chicago, indianapolis, 15000, 20),
	}
	res, err := e.MatchPools(context.Background(), shipments, nil, pooling.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, res.Opportunities, 1)
	assert.Greater(t, res.Opportunities[0].SavingsPercent, 0.0)
	assert.Equal(t, 2, res.PooledCount)
}

func TestMatchPoolsUsesPredictor(t *testing.T) {
	e := newEngine(t, nil, WithPredictor(pooling.StaticPredictor{"a,b": 0.1}))
	shipments := []model.Shipment{
		ship("a", chicago, indianapolis, 15000, 20),
		ship("b", chicago, indianapolis, 15000, 20),
	}
	res, err := e.MatchPools(context.Background(), shipments, nil, pooling.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities)
}

func TestMatchPoolsInvalidConfig(t *testing.T) {
	e := newEngine(t, nil)
	cfg := pooling.DefaultConfig()
	cfg.MaxShipmentsPerPool = 1
	_, err := e.MatchPools(context.Background(), lanes(1), nil, cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.ErrorIs(t, err, pooling.ErrInvalidConfig)
}

func TestImproveAssignmentFromSingletons(t *testing.T) {
	e := newEngine(t, nil)
	shipments := lanes(3)
	groups := make([][]string, len(shipments))
	for i, s := range shipments {
		groups[i] = []string{s.ID}
	}
	res, err := e.ImproveAssignment(context.Background(), groups, shipments, nil, e.Config().ALNS, 7)
	require.NoError(t, err)

	assert.Less(t, res.Metrics.BestCost, res.Metrics.InitialCost)
	assert.Len(t, res.Routes, 2)
	assert.Empty(t, res.Unassigned)
}

func TestImproveAssignmentUnknownID(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.ImproveAssignment(context.Background(), [][]string{{"chi0", "ghost"}}, lanes(1), nil, e.Config().ALNS, 1)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestImproveAssignmentDuplicateGroupMember(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.ImproveAssignment(context.Background(), [][]string{{"chi0"}, {"chi0"}}, lanes(1), nil, e.Config().ALNS, 1)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestImproveAssignmentDropsRejectedIDs(t *testing.T) {
	e := newEngine(t, nil)
	shipments := append(lanes(1), ship("bad", chicago, indianapolis, 0, 8))
	res, err := e.ImproveAssignment(context.Background(), [][]string{{"chi0", "bad"}, {"dal0"}}, shipments, nil, e.Config().ALNS, 1)
	require.NoError(t, err)
	assert.Len(t, res.Routes, 2)
}

func TestSolveLargeInstance(t *testing.T) {
	e := newEngine(t, nil)
	res, err := e.SolveLargeInstance(context.Background(), lanes(4), nil, e.Config().ColGen)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.TotalCost, res.NaiveCost)
	assert.Len(t, res.Routes, 2)
}

func TestPlanDispatchesBySize(t *testing.T) {
	small := newEngine(t, nil)
	res, err := small.Plan(context.Background(), lanes(2), nil, 3)
	require.NoError(t, err)
	assert.Equal(t, "alns", res.Method)
	assert.NotNil(t, res.ALNS)
	assert.Nil(t, res.ColGen)

	large := newEngine(t, func(c *config.Optimizer) { c.LargeInstanceThreshold = 3 })
	res, err = large.Plan(context.Background(), lanes(2), nil, 3)
	require.NoError(t, err)
	assert.Equal(t, "colgen", res.Method)
	assert.NotNil(t, res.ColGen)
	assert.Len(t, res.Routes, 2)
	assert.Empty(t, res.Unassigned)

	total := 0.0
	for _, r := range res.Routes {
		total += r.Cost
	}
	assert.InDelta(t, total, res.TotalCost, 1e-9)
}

func TestPlanReportsRejected(t *testing.T) {
	e := newEngine(t, nil)
	shipments := append(lanes(1), ship("chi0", chicago, indianapolis, 100, 1))
	res, err := e.Plan(context.Background(), shipments, nil, 1)
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "chi0", res.Rejected[0].ID)
}

func TestConcurrentCalls(t *testing.T) {
	e := newEngine(t, nil)
	var wg sync.WaitGroup
	costs := make([]float64, 4)
	for i := range costs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Plan(context.Background(), lanes(3), nil, 11)
			if assert.NoError(t, err) {
				costs[i] = res.TotalCost
			}
		}()
	}
	wg.Wait()
	for _, c := range costs[1:] {
		assert.Equal(t, costs[0], c)
	}
}
