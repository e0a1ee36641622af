package colgen

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"freightpool/internal/model"
	"freightpool/internal/route"
)

// pricer searches for columns with negative reduced cost by growing a route
// from every seed shipment.
type pricer struct {
	ships     []model.Shipment
	builder   *route.Builder
	lim       route.Limits
	depot     *model.Location
	cfg       Config
	neighbors [][]int
}

func newPricer(ships []model.Shipment, b *route.Builder, lim route.Limits, depot *model.Location, cfg Config) *pricer {
	n := len(ships)
	p := &pricer{ships: ships, builder: b, lim: lim, depot: depot, cfg: cfg, neighbors: make([][]int, n)}
	rel := make([]float64, n)
	for i := 0; i < n; i++ {
		cands := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i || ships[j].Equipment != ships[i].Equipment {
				continue
			}
			rel[j] = 1 / (1 + ships[i].Origin.MilesTo(ships[j].Origin) + ships[i].Destination.MilesTo(ships[j].Destination))
			cands = append(cands, j)
		}
		sort.SliceStable(cands, func(a, b int) bool { return rel[cands[a]] > rel[cands[b]] })
		if len(cands) > cfg.CandidateLimit {
			cands = cands[:cfg.CandidateLimit]
		}
		p.neighbors[i] = cands
	}
	return p
}

func (p *pricer) cost(dist float64) float64 { return dist*p.cfg.CostPerMile + p.cfg.DispatchCost }

// best returns the most negative reduced-cost column not yet in m.
func (p *pricer) best(ctx context.Context, duals []float64, m *master) (Column, bool) {
	found := make([]*Column, len(p.ships))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.cfg.Workers))
	for seed := range p.ships {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found[seed] = p.grow(seed, duals, m)
			return nil
		})
	}
	_ = g.Wait()

	var out Column
	ok := false
	for _, c := range found {
		if c != nil && (!ok || c.ReducedCost < out.ReducedCost-1e-12) {
			out, ok = *c, true
		}
	}
	return out, ok
}

// grow extends seed greedily, always adding the candidate with the lowest
// added cost per unit of dual value. Every prefix is a candidate column.
func (p *pricer) grow(seed int, duals []float64, m *master) *Column {
	seq, dist, err := p.builder.Sequence(p.ships, []int{seed}, p.lim, p.depot)
	if err != nil {
		return nil
	}
	members := []int{seed}
	dualSum := duals[seed]
	in := map[int]bool{seed: true}
	var best *Column
	for len(members) < p.cfg.MaxShipmentsPerRoute {
		next := -1
		var nextIns route.Insertion
		bestRatio := math.Inf(1)
		for _, c := range p.neighbors[seed] {
			if in[c] || duals[c] <= 0 {
				continue
			}
			ins, err := p.builder.Insert(p.ships, seq, c, p.lim, p.depot)
			if err != nil {
				continue
			}
			ratio := ins.Added * p.cfg.CostPerMile / duals[c]
			if ratio < bestRatio-1e-12 {
				next, nextIns, bestRatio = c, ins, ratio
			}
		}
		if next < 0 {
			break
		}
		members = append(members, next)
		in[next] = true
		dualSum += duals[next]
		seq, dist = nextIns.Visits, nextIns.DistanceMiles
		cost := p.cost(dist)
		rc := cost - dualSum
		if (best == nil || rc < best.ReducedCost) && !m.has(members) {
			best = &Column{
				Shipments:   append([]int(nil), members...),
				Visits:      append([]route.Visit(nil), seq...),
				Distance:    dist,
				Cost:        cost,
				ReducedCost: rc,
			}
		}
	}
	return best
}
