package opt

import (
	"math"
	"math/rand"
	"sort"

	"freightpool/internal/route"
)

// Removal and insertion operator indices, in weight-vector order.
const (
	removeRandom = iota
	removeWorst
	removeRelated
	numRemoval
)

const (
	insertGreedy = iota
	insertRegret2
	numInsertion
)

var (
	RemovalOperators   = [numRemoval]string{"random", "worst", "related"}
	InsertionOperators = [numInsertion]string{"greedy", "regret2"}
)

// noSecond stands in for a missing second-best option in regret scoring, so
// shipments with a single feasible placement are inserted first.
const noSecond = 1e12

// worstRandomness skews worst removal towards the costliest shipments while
// still sampling.
const worstRandomness = 3.0

type search struct {
	p       *Problem
	cfg     Config
	rng     *rand.Rand
	related []float64 // n*n, 1/(1+origin miles+destination miles)
	solo    []float64 // stand-alone route distance, NaN when unroutable
}

func newSearch(p *Problem, cfg Config, seed int64) *search {
	n := len(p.Shipments)
	s := &search{
		p:       p,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		related: make([]float64, n*n),
		solo:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := p.Shipments[i], p.Shipments[j]
			r := 1 / (1 + a.Origin.MilesTo(b.Origin) + a.Destination.MilesTo(b.Destination))
			s.related[i*n+j], s.related[j*n+i] = r, r
		}
		sh := p.Shipments[i]
		lim := route.Limits{MaxWeightLbs: sh.WeightLbs, MaxLinearFeet: sh.LinearFeet}
		if _, d, err := p.Builder.Sequence(p.Shipments, []int{i}, lim, p.Depot); err == nil {
			s.solo[i] = d
		} else {
			s.solo[i] = math.NaN()
		}
	}
	return s
}

func (s *search) destroy(op int, sol *Solution, k int) []int {
	var picked []int
	switch op {
	case removeWorst:
		picked = s.pickWorst(sol, k)
	case removeRelated:
		picked = s.pickRelated(sol, k)
	default:
		picked = s.pickRandom(sol, k)
	}
	return s.strip(sol, picked)
}

func assignedList(sol *Solution) []int {
	out := make([]int, 0, sol.Assigned())
	for _, pl := range sol.Plans {
		out = append(out, pl.Members()...)
	}
	return out
}

func (s *search) pickRandom(sol *Solution, k int) []int {
	all := assignedList(sol)
	s.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

// pickWorst ranks shipments by how much distance cost their removal saves.
func (s *search) pickWorst(sol *Solution, k int) []int {
	type cand struct {
		ship int
		gain float64
	}
	var cands []cand
	buf := make([]route.Visit, 0, 16)
	for _, pl := range sol.Plans {
		members := pl.Members()
		rate := s.p.rate(pl.Vehicle)
		for _, m := range members {
			buf = buf[:0]
			for _, v := range pl.Visits {
				if v.Shipment != m {
					buf = append(buf, v)
				}
			}
			gain := pl.Distance / float64(len(members))
			if len(buf) == 0 {
				gain = pl.Distance
			} else if d, err := s.p.Builder.Distance(s.p.Shipments, buf, s.p.limits(pl.Vehicle), s.p.Depot); err == nil {
				gain = pl.Distance - d
			}
			cands = append(cands, cand{ship: m, gain: gain * rate})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].gain > cands[j].gain })
	var out []int
	for len(out) < k && len(cands) > 0 {
		idx := int(math.Pow(s.rng.Float64(), worstRandomness) * float64(len(cands)))
		out = append(out, cands[idx].ship)
		cands = append(cands[:idx], cands[idx+1:]...)
	}
	return out
}

// pickRelated removes a random seed and the shipments most related to it.
func (s *search) pickRelated(sol *Solution, k int) []int {
	all := assignedList(sol)
	if len(all) == 0 {
		return nil
	}
	n := len(s.p.Shipments)
	seedPos := s.rng.Intn(len(all))
	seed := all[seedPos]
	rest := append(all[:seedPos:seedPos], all[seedPos+1:]...)
	sort.SliceStable(rest, func(i, j int) bool {
		return s.related[seed*n+rest[i]] > s.related[seed*n+rest[j]]
	})
	out := []int{seed}
	for _, r := range rest {
		if len(out) >= k {
			break
		}
		out = append(out, r)
	}
	return out
}

// strip removes shipments from their plans and re-prices what is left. A plan
// that stops being feasible without them is resequenced, and failing that
// dissolved into the returned list.
func (s *search) strip(sol *Solution, picked []int) []int {
	if len(picked) == 0 {
		return nil
	}
	rm := make(map[int]bool, len(picked))
	for _, x := range picked {
		rm[x] = true
	}
	removed := append([]int(nil), picked...)
	kept := sol.Plans[:0]
	for _, pl := range sol.Plans {
		touched := false
		visits := pl.Visits[:0:0]
		for _, v := range pl.Visits {
			if rm[v.Shipment] {
				touched = true
				continue
			}
			visits = append(visits, v)
		}
		if !touched {
			kept = append(kept, pl)
			continue
		}
		if len(visits) == 0 {
			continue
		}
		pl.Visits = visits
		lim := s.p.limits(pl.Vehicle)
		if d, err := s.p.Builder.Distance(s.p.Shipments, visits, lim, s.p.Depot); err == nil {
			pl.Distance = d
			kept = append(kept, pl)
			continue
		}
		members := pl.Members()
		if seq, d, err := s.p.Builder.Sequence(s.p.Shipments, members, lim, s.p.Depot); err == nil {
			pl.Visits, pl.Distance = seq, d
			kept = append(kept, pl)
			continue
		}
		removed = append(removed, members...)
	}
	sol.Plans = kept
	return removed
}

type slot struct {
	valid bool
	ok    bool
	cost  float64
	ins   route.Insertion
}

func (s *search) tryInsert(pl Plan, ship int) slot {
	if !s.p.accepts(pl, ship) {
		return slot{valid: true}
	}
	ins, err := s.p.Builder.Insert(s.p.Shipments, pl.Visits, ship, s.p.limits(pl.Vehicle), s.p.Depot)
	if err != nil {
		return slot{valid: true}
	}
	return slot{valid: true, ok: true, cost: ins.Added * s.p.rate(pl.Vehicle), ins: ins}
}

// openOption prices serving ship alone on a fresh vehicle.
func (s *search) openOption(sol *Solution, ship int) (vehicle int, cost float64, ok bool) {
	if math.IsNaN(s.solo[ship]) {
		return -1, 0, false
	}
	v, ok := s.p.freeVehicle(sol.Plans, ship)
	if !ok {
		return -1, 0, false
	}
	if v < 0 && !s.p.DefaultLimits.Fits(s.p.Shipments[ship].WeightLbs, s.p.Shipments[ship].LinearFeet) {
		return -1, 0, false
	}
	return v, s.solo[ship] * s.p.rate(v), true
}

// repair reinserts pending shipments by cheapest insertion or, with regret
// set, by largest regret-2 first. Shipments with no feasible placement end
// up in sol.Unassigned.
func (s *search) repair(sol *Solution, pending []int, regret bool) {
	pending = append([]int(nil), pending...)
	cache := make([][]slot, len(pending))
	for len(pending) > 0 {
		bestR, bestPlan, bestVehicle := -1, -1, -1
		bestCost, bestScore := math.Inf(1), math.Inf(-1)
		var bestIns route.Insertion
		for r, ship := range pending {
			for len(cache[r]) < len(sol.Plans) {
				cache[r] = append(cache[r], slot{})
			}
			c1, c2 := math.Inf(1), math.Inf(1)
			p1, v1 := -1, -1
			var ins1 route.Insertion
			for pi := range sol.Plans {
				sl := &cache[r][pi]
				if !sl.valid {
					*sl = s.tryInsert(sol.Plans[pi], ship)
				}
				if !sl.ok {
					continue
				}
				if sl.cost < c1 {
					c2, c1, p1, ins1 = c1, sl.cost, pi, sl.ins
				} else if sl.cost < c2 {
					c2 = sl.cost
				}
			}
			if v, cost, ok := s.openOption(sol, ship); ok {
				if cost < c1 {
					c2, c1, p1, v1 = c1, cost, len(sol.Plans), v
				} else if cost < c2 {
					c2 = cost
				}
			}
			if p1 < 0 {
				continue
			}
			score := -c1
			if regret {
				if math.IsInf(c2, 1) {
					score = noSecond - c1
				} else {
					score = c2 - c1
				}
			}
			if bestR < 0 || score > bestScore+1e-9 || (math.Abs(score-bestScore) <= 1e-9 && c1 < bestCost-1e-9) {
				bestR, bestPlan, bestVehicle = r, p1, v1
				bestCost, bestScore, bestIns = c1, score, ins1
			}
		}
		if bestR < 0 {
			sol.Unassigned = append(sol.Unassigned, pending...)
			break
		}
		if bestPlan == len(sol.Plans) {
			ship := pending[bestR]
			seq, d, err := s.p.Builder.Sequence(s.p.Shipments, []int{ship}, s.p.limits(bestVehicle), s.p.Depot)
			if err != nil {
				sol.Unassigned = append(sol.Unassigned, ship)
			} else {
				sol.Plans = append(sol.Plans, Plan{Vehicle: bestVehicle, Visits: seq, Distance: d})
			}
		} else {
			pl := &sol.Plans[bestPlan]
			pl.Visits, pl.Distance = bestIns.Visits, bestIns.DistanceMiles
			for r := range cache {
				if bestPlan < len(cache[r]) {
					cache[r][bestPlan].valid = false
				}
			}
		}
		pending = append(pending[:bestR], pending[bestR+1:]...)
		cache = append(cache[:bestR], cache[bestR+1:]...)
	}
	sort.Ints(sol.Unassigned)
}

// selectOp spins the roulette wheel over weights.
func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
