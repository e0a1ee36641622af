package colgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"freightpool/internal/model"
	"freightpool/internal/route"
)

type Config struct {
	MaxIterations        int           `json:"maxIterations" yaml:"maxIterations"`
	Tolerance            float64       `json:"tolerance" yaml:"tolerance"`
	TimeLimit            time.Duration `json:"-" yaml:"timeLimit"`
	MaxShipmentsPerRoute int           `json:"maxShipmentsPerRoute" yaml:"maxShipmentsPerRoute"`
	CandidateLimit       int           `json:"candidateLimit" yaml:"candidateLimit"`
	CostPerMile          float64       `json:"costPerMile" yaml:"costPerMile"`
	DispatchCost         float64       `json:"dispatchCost" yaml:"dispatchCost"`
	Limits               route.Limits  `json:"limits" yaml:"limits"`
	// UseCarrierDepot starts every route at the first carrier's location.
	UseCarrierDepot bool `json:"useCarrierDepot" yaml:"useCarrierDepot"`
	Workers         int  `json:"workers" yaml:"workers"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:        100,
		Tolerance:            0.001,
		TimeLimit:            60 * time.Second,
		MaxShipmentsPerRoute: 4,
		CandidateLimit:       25,
		CostPerMile:          2.5,
		DispatchCost:         50,
		Limits:               route.Limits{MaxWeightLbs: 45000, MaxLinearFeet: 53},
		Workers:              4,
	}
}

var ErrInvalidConfig = errors.New("invalid column generation config")

func (c Config) Validate() error {
	bad := func(msg string) error { return fmt.Errorf("%w: %s", ErrInvalidConfig, msg) }
	switch {
	case c.MaxIterations < 0:
		return bad("maxIterations must be >= 0")
	case c.Tolerance < 0:
		return bad("tolerance must be >= 0")
	case c.TimeLimit < 0:
		return bad("timeLimit must be >= 0")
	case c.MaxShipmentsPerRoute < 1:
		return bad("maxShipmentsPerRoute must be >= 1")
	case c.CandidateLimit < 1:
		return bad("candidateLimit must be >= 1")
	case c.CostPerMile <= 0:
		return bad("costPerMile must be positive")
	case c.DispatchCost < 0:
		return bad("dispatchCost must be >= 0")
	case c.Limits.MaxWeightLbs <= 0 || c.Limits.MaxLinearFeet <= 0:
		return bad("limits must be positive")
	case c.Workers < 0:
		return bad("workers must be >= 0")
	}
	return nil
}

type Status string

const (
	StatusConverged      Status = "converged"
	StatusIterationLimit Status = "iteration_limit"
	StatusTimeLimit      Status = "time_limit"
	StatusCancelled      Status = "cancelled"
)

type Result struct {
	Routes        []model.Route         `json:"routes"`
	Columns       []Column              `json:"columns"`
	TotalCost     float64               `json:"totalCost"`
	TotalDistance float64               `json:"totalDistanceMiles"`
	NaiveCost     float64               `json:"naiveCost"`
	Unassigned    []string              `json:"unassigned"`
	Rejected      []model.RejectedInput `json:"rejected,omitempty"`
	Iterations    int                   `json:"iterations"`
	PoolSize      int                   `json:"poolSize"`
	LowerBound    float64               `json:"lowerBound"`
	UpperBound    float64               `json:"upperBound"`
	// Gap is advisory: the duals come from a greedy cover, not an LP.
	Gap     float64       `json:"gap"`
	Status  Status        `json:"status"`
	Elapsed time.Duration `json:"elapsed"`
}

// Solve runs column generation until no column prices out, the iteration cap
// or time limit is reached, or ctx is done. The master is always re-solved
// once more at the end so the result reflects every column generated.
func Solve(ctx context.Context, shipments []model.Shipment, carriers []model.Carrier, b *route.Builder, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	res := Result{Status: StatusConverged, Unassigned: []string{}}

	ships := make([]model.Shipment, 0, len(shipments))
	for _, s := range shipments {
		if err := s.Validate(); err != nil {
			res.Rejected = append(res.Rejected, model.RejectedInput{ID: s.ID, Reason: err.Error()})
			continue
		}
		ships = append(ships, s)
	}
	n := len(ships)
	if n == 0 {
		res.Elapsed = time.Since(start)
		return res, nil
	}
	var depot *model.Location
	if cfg.UseCarrierDepot && len(carriers) > 0 {
		loc := carriers[0].Location
		depot = &loc
	}

	m := newMaster(n)
	pr := newPricer(ships, b, cfg.Limits, depot, cfg)
	for i := range ships {
		seq, dist, err := b.Sequence(ships, []int{i}, cfg.Limits, depot)
		if err != nil {
			continue
		}
		c := Column{Shipments: []int{i}, Visits: seq, Distance: dist, Cost: pr.cost(dist)}
		m.add(c)
		res.NaiveCost += c.Cost
	}

	var deadline time.Time
	if cfg.TimeLimit > 0 {
		deadline = start.Add(cfg.TimeLimit)
	}
	lower, upper := 0.0, math.Inf(1)
	capped := true
	for res.Iterations < cfg.MaxIterations {
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			capped = false
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			res.Status = StatusTimeLimit
			capped = false
			break
		}
		ms := m.solve()
		if len(ms.Selected) > 0 {
			upper = math.Min(upper, ms.Objective)
		}
		col, ok := pr.best(ctx, ms.Duals, m)
		rc := 0.0
		if ok {
			rc = math.Min(0, col.ReducedCost)
		}
		dualSum := 0.0
		for _, d := range ms.Duals {
			dualSum += d
		}
		lower = math.Max(lower, dualSum+float64(len(ms.Selected))*rc)
		if !ok || col.ReducedCost >= -cfg.Tolerance {
			capped = false
			break
		}
		m.add(col)
		res.Iterations++
	}
	if capped && cfg.MaxIterations > 0 {
		res.Status = StatusIterationLimit
	}

	final := m.solve()
	if len(final.Selected) > 0 {
		upper = math.Min(upper, final.Objective)
	}
	if math.IsInf(upper, 1) {
		upper = 0
	}
	lower = math.Min(lower, upper)
	res.LowerBound, res.UpperBound = lower, upper
	if upper > 0 {
		res.Gap = math.Max(0, (upper-lower)/upper)
	}
	res.PoolSize = len(m.columns)

	used := make([]bool, len(carriers))
	for _, idx := range final.Selected {
		c := m.columns[idx]
		r, err := b.Evaluate(ships, c.Visits, cfg.Limits, depot)
		if err != nil {
			return Result{}, fmt.Errorf("column %d: %w", c.ID, err)
		}
		r.ID = fmt.Sprintf("col-%d", c.ID)
		r.Cost = c.Cost
		r.VehicleID = assignCarrier(ships, c.Shipments, carriers, used)
		res.Routes = append(res.Routes, r)
		res.Columns = append(res.Columns, c)
		res.TotalCost += c.Cost
		res.TotalDistance += c.Distance
	}
	for i, covered := range final.Covered {
		if !covered {
			res.Unassigned = append(res.Unassigned, ships[i].ID)
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// assignCarrier hands out the first unused carrier able to take every member.
func assignCarrier(ships []model.Shipment, members []int, carriers []model.Carrier, used []bool) string {
next:
	for i, c := range carriers {
		if used[i] {
			continue
		}
		var w, f float64
		for _, s := range members {
			if !c.CanHandle(ships[s]) {
				continue next
			}
			w += ships[s].WeightLbs
			f += ships[s].LinearFeet
		}
		if !route.LimitsFor(c).Fits(w, f) {
			continue
		}
		used[i] = true
		return c.ID
	}
	return ""
}
