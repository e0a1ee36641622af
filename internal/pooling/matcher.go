// Package pooling finds groups of compatible shipments that can share one
// truck and prices each group against shipping its members separately.
package pooling

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"freightpool/internal/model"
	"freightpool/internal/route"
)

// Status reports whether a run covered every candidate pool.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Result is the ranked output of one matching run.
type Result struct {
	Opportunities         []model.PoolingOpportunity `json:"opportunities"`
	TotalSavings          float64                    `json:"totalSavings"`
	AverageSavingsPercent float64                    `json:"averageSavingsPercent"`
	PooledCount           int                        `json:"pooledCount"`
	UnpooledCount         int                        `json:"unpooledCount"`
	CandidatePools        int                        `json:"candidatePools"`
	Rejected              []model.RejectedInput      `json:"rejected,omitempty"`
	Status                Status                     `json:"status"`
	Elapsed               time.Duration              `json:"elapsed"`
}

// Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	cfg       Config
	builder   *route.Builder
	predictor Predictor
}

type Option func(*Matcher)

// WithPredictor installs the external probability source.
func WithPredictor(p Predictor) Option { return func(m *Matcher) { m.predictor = p } }

func NewMatcher(cfg Config, b *route.Builder, opts ...Option) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Matcher{cfg: cfg, builder: b}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Matcher) Config() Config { return m.cfg }

// FindOpportunities runs filtering, clustering, pricing and ranking.
// Cancelling ctx stops pricing; pools already priced are still returned.
func (m *Matcher) FindOpportunities(ctx context.Context, shipments []model.Shipment, carriers []model.Carrier) Result {
	start := time.Now()
	res := Result{Status: StatusCompleted, UnpooledCount: len(shipments)}

	eligible := make([]model.Shipment, 0, len(shipments))
	for _, s := range shipments {
		if err := s.Validate(); err != nil {
			res.Rejected = append(res.Rejected, model.RejectedInput{ID: s.ID, Reason: err.Error()})
			continue
		}
		if s.WeightLbs > m.cfg.MaxTotalWeightLbs || s.LinearFeet > m.cfg.MaxTotalLinearFeet {
			continue
		}
		eligible = append(eligible, s)
	}
	fleet := make([]model.Carrier, 0, len(carriers))
	for _, c := range carriers {
		if err := c.Validate(); err != nil {
			res.Rejected = append(res.Rejected, model.RejectedInput{ID: c.ID, Reason: err.Error()})
			continue
		}
		fleet = append(fleet, c)
	}
	if len(eligible) < 2 {
		res.Elapsed = time.Since(start)
		return res
	}

	mx := m.cfg.buildMatrix(eligible)
	pools := m.cluster(eligible, mx)
	res.CandidatePools = len(pools)

	priced := make([]*model.PoolingOpportunity, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.cfg.Workers))
	for i, pool := range pools {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			group := make([]model.Shipment, len(pool))
			for k, idx := range pool {
				group[k] = eligible[idx]
			}
			priced[i] = m.price(group, fleet)
			return nil
		})
	}
	if err := g.Wait(); err != nil || ctx.Err() != nil {
		res.Status = StatusCancelled
	}

	pooled := make(map[string]bool)
	for _, op := range priced {
		if op == nil {
			continue
		}
		res.Opportunities = append(res.Opportunities, *op)
	}
	// priced is in seed order, so the stable sort breaks savings ties by it.
	sort.SliceStable(res.Opportunities, func(a, b int) bool {
		return res.Opportunities[a].SavingsPercent > res.Opportunities[b].SavingsPercent
	})
	for _, op := range res.Opportunities {
		res.TotalSavings += op.TotalSavings()
		res.AverageSavingsPercent += op.SavingsPercent
		for _, id := range op.ShipmentIDs {
			pooled[id] = true
		}
	}
	if len(res.Opportunities) > 0 {
		res.AverageSavingsPercent /= float64(len(res.Opportunities))
	}
	res.PooledCount = len(pooled)
	res.UnpooledCount = len(shipments) - len(pooled)
	res.Elapsed = time.Since(start)
	return res
}

// cluster grows pools greedily from the best-connected shipments. A member
// joins only if it is compatible with everyone already in the pool.
func (m *Matcher) cluster(ships []model.Shipment, mx *matrix) [][]int {
	n := len(ships)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return mx.degree[order[a]] > mx.degree[order[b]] })

	claimed := make([]bool, n)
	var pools [][]int
	cands := make([]int, 0, n)
	for _, seed := range order {
		if claimed[seed] || mx.degree[seed] == 0 {
			continue
		}
		cands = cands[:0]
		for j := 0; j < n; j++ {
			if j != seed && !claimed[j] && mx.compatible(seed, j) {
				cands = append(cands, j)
			}
		}
		sort.SliceStable(cands, func(a, b int) bool { return mx.at(seed, cands[a]) > mx.at(seed, cands[b]) })

		pool := []int{seed}
		w, f := ships[seed].WeightLbs, ships[seed].LinearFeet
		for _, c := range cands {
			if len(pool) >= m.cfg.MaxShipmentsPerPool {
				break
			}
			fits := w+ships[c].WeightLbs <= m.cfg.MaxTotalWeightLbs && f+ships[c].LinearFeet <= m.cfg.MaxTotalLinearFeet
			if !fits {
				continue
			}
			all := true
			for _, member := range pool[1:] {
				if !mx.compatible(member, c) {
					all = false
					break
				}
			}
			if !all {
				continue
			}
			pool = append(pool, c)
			w += ships[c].WeightLbs
			f += ships[c].LinearFeet
		}
		if len(pool) < 2 {
			continue
		}
		for _, idx := range pool {
			claimed[idx] = true
		}
		pools = append(pools, pool)
	}
	return pools
}

// price evaluates one candidate pool; nil means it fell below a floor.
func (m *Matcher) price(group []model.Shipment, fleet []model.Carrier) *model.PoolingOpportunity {
	var w, f, individual, direct float64
	for _, s := range group {
		w += s.WeightLbs
		f += s.LinearFeet
		d := s.DistanceMiles()
		direct += d
		individual += d*m.cfg.CostPerMile + m.cfg.DispatchCost
	}
	if w > m.cfg.MaxTotalWeightLbs || f > m.cfg.MaxTotalLinearFeet {
		return nil
	}
	scores := m.cfg.scorePool(group)
	prob := scores.overall()
	if m.predictor != nil {
		if p, ok := m.predictor.Predict(group); ok {
			prob = clamp01(p)
		}
	}
	if prob < m.cfg.MinPoolingProbability {
		return nil
	}

	ids := make([]string, len(group))
	for i, s := range group {
		ids[i] = s.ID
	}
	op := &model.PoolingOpportunity{
		ID:              model.OpportunityID(ids),
		ShipmentIDs:     ids,
		GeographicScore: scores.geo,
		TemporalScore:   scores.temporal,
		CapacityScore:   scores.capacity,
		OverallScore:    scores.overall(),
		Probability:     prob,
		IndividualCost:  individual,
	}
	lim := route.Limits{MaxWeightLbs: m.cfg.MaxTotalWeightLbs, MaxLinearFeet: m.cfg.MaxTotalLinearFeet}
	if c, ok := pickCarrier(group, fleet, w, f); ok {
		lim = route.LimitsFor(c)
		op.CarrierID = c.ID
	}
	if r, err := m.builder.Build(group, lim, nil); err == nil {
		op.PooledCost = r.DistanceMiles*m.cfg.CostPerMile + m.cfg.DispatchCost
		r.ID = op.ID
		r.VehicleID = op.CarrierID
		r.Cost = op.PooledCost
		op.Route = &r
	} else {
		op.PooledCost = direct*m.cfg.PooledDistanceFactor*m.cfg.CostPerMile + m.cfg.DispatchCost
		op.Estimated = true
	}
	if individual > 0 {
		op.SavingsPercent = (individual - op.PooledCost) / individual * 100
	}
	if op.SavingsPercent < m.cfg.MinSavingsPercent {
		return nil
	}
	return op
}

// pickCarrier chooses the carrier that can take the whole group; performance
// history only breaks ties.
func pickCarrier(group []model.Shipment, fleet []model.Carrier, w, f float64) (model.Carrier, bool) {
	var best model.Carrier
	found := false
	for _, c := range fleet {
		if c.Equipment != group[0].Equipment || !route.LimitsFor(c).Fits(w, f) {
			continue
		}
		if !found || betterCarrier(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func betterCarrier(a, b model.Carrier) bool {
	if a.OnTimePct != b.OnTimePct {
		return a.OnTimePct > b.OnTimePct
	}
	if a.AcceptanceRate != b.AcceptanceRate {
		return a.AcceptanceRate > b.AcceptanceRate
	}
	return a.ID < b.ID
}
