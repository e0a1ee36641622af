package opt

import (
	"errors"
	"fmt"
	"sort"

	"freightpool/internal/model"
	"freightpool/internal/route"
)

// Problem is one consolidation instance. Carriers are the vehicles; with no
// carriers the fleet is unbounded and every route uses DefaultLimits.
type Problem struct {
	Shipments         []model.Shipment
	Carriers          []model.Carrier
	Builder           *route.Builder
	DefaultLimits     route.Limits
	CostPerMile       float64
	UnassignedPenalty float64
	Depot             *model.Location
}

func (p *Problem) Validate() error {
	switch {
	case p.Builder == nil:
		return errors.New("problem: builder required")
	case p.CostPerMile <= 0:
		return errors.New("problem: costPerMile must be positive")
	case p.UnassignedPenalty < 0:
		return errors.New("problem: unassignedPenalty must be >= 0")
	case len(p.Carriers) == 0 && (p.DefaultLimits.MaxWeightLbs <= 0 || p.DefaultLimits.MaxLinearFeet <= 0):
		return errors.New("problem: default limits required without carriers")
	}
	return nil
}

// Plan is one route: the vehicle serving it and its stop sequence.
type Plan struct {
	Vehicle  int           `json:"vehicle"` // index into Carriers, -1 when unbounded
	Visits   []route.Visit `json:"visits"`
	Distance float64       `json:"distanceMiles"`
}

// Members returns the shipment indices on the plan in pickup order.
func (pl Plan) Members() []int {
	out := make([]int, 0, len(pl.Visits)/2)
	for _, v := range pl.Visits {
		if v.Kind == model.Pickup {
			out = append(out, v.Shipment)
		}
	}
	return out
}

// Solution assigns each shipment to at most one plan.
type Solution struct {
	Plans      []Plan  `json:"plans"`
	Unassigned []int   `json:"unassigned"`
	Cost       float64 `json:"cost"`
}

func (s Solution) Clone() Solution {
	out := Solution{Unassigned: append([]int(nil), s.Unassigned...), Cost: s.Cost}
	if s.Plans != nil {
		out.Plans = make([]Plan, len(s.Plans))
	}
	for i, pl := range s.Plans {
		out.Plans[i] = Plan{Vehicle: pl.Vehicle, Visits: append([]route.Visit(nil), pl.Visits...), Distance: pl.Distance}
	}
	return out
}

// Assigned counts shipments on some plan.
func (s Solution) Assigned() int {
	n := 0
	for _, pl := range s.Plans {
		n += len(pl.Visits) / 2
	}
	return n
}

func (p *Problem) rate(vehicle int) float64 {
	if vehicle >= 0 && p.Carriers[vehicle].RatePerMile > 0 {
		return p.Carriers[vehicle].RatePerMile
	}
	return p.CostPerMile
}

func (p *Problem) limits(vehicle int) route.Limits {
	if vehicle >= 0 {
		return route.LimitsFor(p.Carriers[vehicle])
	}
	return p.DefaultLimits
}

// accepts reports whether shipment s may ride on a plan served by vehicle.
func (p *Problem) accepts(pl Plan, s int) bool {
	sh := p.Shipments[s]
	if pl.Vehicle >= 0 {
		return p.Carriers[pl.Vehicle].CanHandle(sh)
	}
	if len(pl.Visits) > 0 && p.Shipments[pl.Visits[0].Shipment].Equipment != sh.Equipment {
		return false
	}
	return p.DefaultLimits.Fits(sh.WeightLbs, sh.LinearFeet)
}

// Cost is distance times rate over all plans plus the unassigned penalty.
func (p *Problem) Cost(s Solution) float64 {
	total := 0.0
	for _, pl := range s.Plans {
		total += pl.Distance * p.rate(pl.Vehicle)
	}
	return total + float64(len(s.Unassigned))*p.UnassignedPenalty
}

// freeVehicle returns the lowest-index unused carrier able to take every
// shipment in members. Without carriers it returns -1, true.
func (p *Problem) freeVehicle(plans []Plan, members ...int) (int, bool) {
	if len(p.Carriers) == 0 {
		return -1, true
	}
	used := make([]bool, len(p.Carriers))
	for _, pl := range plans {
		if pl.Vehicle >= 0 {
			used[pl.Vehicle] = true
		}
	}
next:
	for v := range p.Carriers {
		if used[v] {
			continue
		}
		for _, s := range members {
			if !p.Carriers[v].CanHandle(p.Shipments[s]) {
				continue next
			}
		}
		return v, true
	}
	return -1, false
}

// Evaluate turns a caller grouping (shipment indices) into a priced solution.
// Groups that cannot be routed spill to Unassigned, as does any shipment no
// group mentions.
func (p *Problem) Evaluate(groups [][]int) (Solution, error) {
	seen := make([]bool, len(p.Shipments))
	var sol Solution
	for gi, g := range groups {
		for _, s := range g {
			if s < 0 || s >= len(p.Shipments) {
				return Solution{}, fmt.Errorf("group %d: shipment index %d out of range", gi, s)
			}
			if seen[s] {
				return Solution{}, fmt.Errorf("group %d: shipment %s assigned twice", gi, p.Shipments[s].ID)
			}
			seen[s] = true
		}
		if len(g) == 0 {
			continue
		}
		v, ok := p.freeVehicle(sol.Plans, g...)
		if !ok {
			sol.Unassigned = append(sol.Unassigned, g...)
			continue
		}
		pl := Plan{Vehicle: v}
		if v < 0 && !p.sameEquipment(g) {
			sol.Unassigned = append(sol.Unassigned, g...)
			continue
		}
		visits, dist, err := p.Builder.Sequence(p.Shipments, g, p.limits(v), p.Depot)
		if err != nil {
			sol.Unassigned = append(sol.Unassigned, g...)
			continue
		}
		pl.Visits, pl.Distance = visits, dist
		sol.Plans = append(sol.Plans, pl)
	}
	for s := range p.Shipments {
		if !seen[s] {
			sol.Unassigned = append(sol.Unassigned, s)
		}
	}
	sort.Ints(sol.Unassigned)
	sol.Cost = p.Cost(sol)
	return sol, nil
}

func (p *Problem) sameEquipment(members []int) bool {
	for _, s := range members[1:] {
		if p.Shipments[s].Equipment != p.Shipments[members[0]].Equipment {
			return false
		}
	}
	return true
}

// Singletons is the naive one-shipment-per-route solution.
func (p *Problem) Singletons() Solution {
	groups := make([][]int, len(p.Shipments))
	for i := range groups {
		groups[i] = []int{i}
	}
	sol, _ := p.Evaluate(groups)
	return sol
}

// GreedySeed builds a starting solution by cheapest insertion of every
// shipment, opening routes as needed.
func (p *Problem) GreedySeed() Solution {
	s := newSearch(p, DefaultConfig(), 1)
	var sol Solution
	pending := make([]int, len(p.Shipments))
	for i := range pending {
		pending[i] = i
	}
	s.repair(&sol, pending, false)
	sol.Cost = p.Cost(sol)
	return sol
}

// Routes materializes the plans of s as scheduled routes.
func (p *Problem) Routes(s Solution) ([]model.Route, error) {
	out := make([]model.Route, 0, len(s.Plans))
	for i, pl := range s.Plans {
		r, err := p.Builder.Evaluate(p.Shipments, pl.Visits, p.limits(pl.Vehicle), p.Depot)
		if err != nil {
			return nil, fmt.Errorf("plan %d: %w", i, err)
		}
		if pl.Vehicle >= 0 {
			r.VehicleID = p.Carriers[pl.Vehicle].ID
		}
		r.Cost = r.DistanceMiles * p.rate(pl.Vehicle)
		out = append(out, r)
	}
	return out, nil
}
