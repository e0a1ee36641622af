// Package opt improves consolidation plans with Adaptive Large Neighborhood
// Search: destroy/repair operators chosen by adaptive roulette weights and a
// simulated-annealing acceptance rule.
package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"freightpool/internal/model"
)

type Config struct {
	MaxIterations              int           `json:"maxIterations" yaml:"maxIterations"`
	MaxIterationsNoImprovement int           `json:"maxIterationsNoImprovement" yaml:"maxIterationsNoImprovement"`
	SegmentSize                int           `json:"segmentSize" yaml:"segmentSize"`
	MinRemovalPct              float64       `json:"minRemovalPct" yaml:"minRemovalPct"`
	MaxRemovalPct              float64       `json:"maxRemovalPct" yaml:"maxRemovalPct"`
	ReactionFactor             float64       `json:"reactionFactor" yaml:"reactionFactor"`
	InitialTemperature         float64       `json:"initialTemperature" yaml:"initialTemperature"`
	CoolingRate                float64       `json:"coolingRate" yaml:"coolingRate"`
	MinTemperature             float64       `json:"minTemperature" yaml:"minTemperature"`
	ScoreBest                  float64       `json:"scoreBest" yaml:"scoreBest"`
	ScoreBetter                float64       `json:"scoreBetter" yaml:"scoreBetter"`
	ScoreAccepted              float64       `json:"scoreAccepted" yaml:"scoreAccepted"`
	UnassignedPenalty          float64       `json:"unassignedPenalty" yaml:"unassignedPenalty"`
	TimeLimit                  time.Duration `json:"-" yaml:"timeLimit"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:              10000,
		MaxIterationsNoImprovement: 1000,
		SegmentSize:                100,
		MinRemovalPct:              0.1,
		MaxRemovalPct:              0.4,
		ReactionFactor:             0.1,
		InitialTemperature:         100,
		CoolingRate:                0.9995,
		MinTemperature:             0.01,
		ScoreBest:                  33,
		ScoreBetter:                9,
		ScoreAccepted:              13,
		UnassignedPenalty:          1000,
		TimeLimit:                  30 * time.Second,
	}
}

var ErrInvalidConfig = errors.New("invalid alns config")

func (c Config) Validate() error {
	bad := func(msg string) error { return fmt.Errorf("%w: %s", ErrInvalidConfig, msg) }
	switch {
	case c.MaxIterations < 0:
		return bad("maxIterations must be >= 0")
	case c.MaxIterationsNoImprovement < 1:
		return bad("maxIterationsNoImprovement must be >= 1")
	case c.SegmentSize < 1:
		return bad("segmentSize must be >= 1")
	case c.MinRemovalPct <= 0 || c.MaxRemovalPct < c.MinRemovalPct || c.MaxRemovalPct > 1:
		return bad("removal range must satisfy 0 < min <= max <= 1")
	case c.ReactionFactor <= 0 || c.ReactionFactor > 1:
		return bad("reactionFactor must be in (0,1]")
	case c.InitialTemperature <= 0 || c.MinTemperature <= 0 || c.MinTemperature > c.InitialTemperature:
		return bad("temperatures must satisfy 0 < min <= initial")
	case c.CoolingRate <= 0 || c.CoolingRate > 1:
		return bad("coolingRate must be in (0,1]")
	case c.UnassignedPenalty < 0:
		return bad("unassignedPenalty must be >= 0")
	case c.TimeLimit < 0:
		return bad("timeLimit must be >= 0")
	}
	return nil
}

type Status string

const (
	StatusCompleted     Status = "completed"
	StatusNoImprovement Status = "no_improvement"
	StatusTimeLimit     Status = "time_limit"
	StatusCancelled     Status = "cancelled"
)

type WeightSnapshot struct {
	Iteration int                   `json:"iteration"`
	Removal   [numRemoval]float64   `json:"removal"`
	Insertion [numInsertion]float64 `json:"insertion"`
}

// TracePoint records a new global best.
type TracePoint struct {
	Iteration int     `json:"iteration"`
	Cost      float64 `json:"cost"`
}

type Metrics struct {
	RemovalSelects        [numRemoval]int       `json:"removalSelects"`
	InsertSelects         [numInsertion]int     `json:"insertSelects"`
	Iterations            int                   `json:"iterations"`
	Improvements          int                   `json:"improvements"`
	AcceptedWorse         int                   `json:"acceptedWorse"`
	InitialCost           float64               `json:"initialCost"`
	BestCost              float64               `json:"bestCost"`
	FinalTemperature      float64               `json:"finalTemperature"`
	FinalRemovalWeights   [numRemoval]float64   `json:"finalRemovalWeights"`
	FinalInsertionWeights [numInsertion]float64 `json:"finalInsertionWeights"`
	Snapshots             []WeightSnapshot      `json:"snapshots,omitempty"`
	BestTrace             []TracePoint          `json:"bestTrace"`
}

type Result struct {
	Solution   Solution      `json:"solution"`
	Routes     []model.Route `json:"routes"`
	Unassigned []string      `json:"unassigned"`
	Status     Status        `json:"status"`
	Metrics    Metrics       `json:"metrics"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Solve improves initial and returns the best solution found. The run is
// fully determined by seed unless the time limit or ctx cuts it short.
func Solve(ctx context.Context, p *Problem, initial Solution, cfg Config, seed int64) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	s := newSearch(p, cfg, seed)

	curr := initial.Clone()
	curr.Cost = p.Cost(curr)
	best := curr.Clone()
	remW := [numRemoval]float64{1, 1, 1}
	insW := [numInsertion]float64{1, 1}
	var remScore [numRemoval]float64
	var remUses [numRemoval]int
	var insScore [numInsertion]float64
	var insUses [numInsertion]int
	temp := cfg.InitialTemperature
	m := Metrics{InitialCost: curr.Cost, BestCost: best.Cost, BestTrace: []TracePoint{{0, best.Cost}}}
	status := StatusCompleted
	var deadline time.Time
	if cfg.TimeLimit > 0 {
		deadline = start.Add(cfg.TimeLimit)
	}
	total := len(p.Shipments)
	noImprove := 0

	for it := 1; it <= cfg.MaxIterations; it++ {
		if ctx.Err() != nil {
			status = StatusCancelled
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			status = StatusTimeLimit
			break
		}
		if total == 0 {
			break
		}
		m.Iterations++

		// removal size is drawn from the configured share of the instance
		lo := max(1, int(math.Ceil(cfg.MinRemovalPct*float64(total))))
		hi := max(lo, int(math.Floor(cfg.MaxRemovalPct*float64(total))))
		k := lo + s.rng.Intn(hi-lo+1)

		op := selectOp(remW[:], s.rng)
		ip := selectOp(insW[:], s.rng)
		m.RemovalSelects[op]++
		m.InsertSelects[ip]++

		cand := curr.Clone()
		removed := s.destroy(op, &cand, k)
		pending := append(removed, cand.Unassigned...)
		cand.Unassigned = nil
		s.repair(&cand, pending, ip == insertRegret2)
		cand.Cost = p.Cost(cand)

		score := 0.0
		switch delta := cand.Cost - curr.Cost; {
		case cand.Cost < best.Cost-1e-9:
			best = cand.Clone()
			curr = cand
			score = cfg.ScoreBest
			m.Improvements++
			m.BestCost = best.Cost
			m.BestTrace = append(m.BestTrace, TracePoint{it, best.Cost})
			noImprove = 0
		case delta < -1e-9:
			curr = cand
			score = cfg.ScoreBetter
			noImprove++
		case s.rng.Float64() < math.Exp(-delta/temp):
			curr = cand
			score = cfg.ScoreAccepted
			if delta > 1e-9 {
				m.AcceptedWorse++
			}
			noImprove++
		default:
			noImprove++
		}
		remScore[op] += score
		remUses[op]++
		insScore[ip] += score
		insUses[ip]++

		if it%cfg.SegmentSize == 0 {
			for i := range remW {
				if remUses[i] > 0 {
					remW[i] = remW[i]*(1-cfg.ReactionFactor) + cfg.ReactionFactor*remScore[i]/float64(remUses[i])
				}
				remScore[i], remUses[i] = 0, 0
			}
			for i := range insW {
				if insUses[i] > 0 {
					insW[i] = insW[i]*(1-cfg.ReactionFactor) + cfg.ReactionFactor*insScore[i]/float64(insUses[i])
				}
				insScore[i], insUses[i] = 0, 0
			}
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Iteration: it, Removal: remW, Insertion: insW})
		}
		temp = math.Max(temp*cfg.CoolingRate, cfg.MinTemperature)

		if noImprove >= cfg.MaxIterationsNoImprovement {
			status = StatusNoImprovement
			break
		}
	}

	m.FinalTemperature = temp
	m.FinalRemovalWeights = remW
	m.FinalInsertionWeights = insW
	routes, err := p.Routes(best)
	if err != nil {
		return Result{}, err
	}
	unassigned := make([]string, 0, len(best.Unassigned))
	for _, i := range best.Unassigned {
		unassigned = append(unassigned, p.Shipments[i].ID)
	}
	return Result{Solution: best, Routes: routes, Unassigned: unassigned, Status: status, Metrics: m, Elapsed: time.Since(start)}, nil
}
