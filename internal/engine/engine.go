// Package engine is the call-level surface of the consolidation core. Every
// call is self-contained: it reads only its arguments and the immutable
// defaults captured by New, so one Engine may serve concurrent callers.
package engine

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"freightpool/internal/colgen"
	"freightpool/internal/config"
	"freightpool/internal/metrics"
	"freightpool/internal/model"
	"freightpool/internal/opt"
	"freightpool/internal/pooling"
	"freightpool/internal/route"
)

// Operation names used in logs, metrics and run records.
const (
	OpMatch   = "match"
	OpImprove = "improve"
	OpSolve   = "solve"
	OpPlan    = "plan"
)

type Engine struct {
	cfg       config.Optimizer
	builder   *route.Builder
	predictor pooling.Predictor
	log       *log.Entry
}

type Option func(*Engine)

// WithPredictor sets the pooling probability source used by MatchPools.
func WithPredictor(p pooling.Predictor) Option { return func(e *Engine) { e.predictor = p } }

func WithLogger(l *log.Entry) Option { return func(e *Engine) { e.log = l } }

func New(cfg config.Optimizer, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := route.NewBuilder(cfg.Route)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	e := &Engine{cfg: cfg, builder: b, log: log.WithField("component", "engine")}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config returns the defaults the engine was built with.
func (e *Engine) Config() config.Optimizer { return e.cfg }

// MatchPools finds and ranks pooling opportunities.
func (e *Engine) MatchPools(ctx context.Context, shipments []model.Shipment, carriers []model.Carrier, cfg pooling.Config) (pooling.Result, error) {
	var opts []pooling.Option
	if e.predictor != nil {
		opts = append(opts, pooling.WithPredictor(e.predictor))
	}
	m, err := pooling.NewMatcher(cfg, e.builder, opts...)
	if err != nil {
		return pooling.Result{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	res := m.FindOpportunities(ctx, shipments, carriers)

	metrics.ObserveRun(OpMatch, string(res.Status), res.Elapsed, res.CandidatePools)
	metrics.PoolingOpportunities.Add(float64(len(res.Opportunities)))
	metrics.Savings.WithLabelValues(OpMatch).Add(res.TotalSavings)
	e.log.WithFields(log.Fields{
		"op":            OpMatch,
		"shipments":     len(shipments),
		"rejected":      len(res.Rejected),
		"candidates":    res.CandidatePools,
		"opportunities": len(res.Opportunities),
		"savings":       res.TotalSavings,
		"status":        res.Status,
		"elapsed":       res.Elapsed,
	}).Info("pooling match finished")
	return res, nil
}

// ImproveAssignment runs ALNS from the given grouping. Groups name shipments
// by ID; shipments no group mentions start unassigned. With no groups at all
// the search starts from a greedy insertion seed.
func (e *Engine) ImproveAssignment(ctx context.Context, groups [][]string, shipments []model.Shipment, carriers []model.Carrier, cfg opt.Config, seed int64) (opt.Result, error) {
	if err := cfg.Validate(); err != nil {
		return opt.Result{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	ships, rejected := validShipments(shipments)
	p := &opt.Problem{
		Shipments:         ships,
		Carriers:          validCarriers(carriers, e.log),
		Builder:           e.builder,
		DefaultLimits:     e.cfg.Limits,
		CostPerMile:       e.cfg.CostPerMile,
		UnassignedPenalty: cfg.UnassignedPenalty,
	}

	var initial opt.Solution
	if len(groups) == 0 {
		initial = p.GreedySeed()
	} else {
		idx, err := groupIndices(groups, ships, rejected)
		if err != nil {
			return opt.Result{}, err
		}
		if initial, err = p.Evaluate(idx); err != nil {
			return opt.Result{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
	}

	res, err := opt.Solve(ctx, p, initial, cfg, seed)
	if err != nil {
		return opt.Result{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	metrics.ObserveRun(OpImprove, string(res.Status), res.Elapsed, res.Metrics.Iterations)
	metrics.Savings.WithLabelValues(OpImprove).Add(max(0, res.Metrics.InitialCost-res.Metrics.BestCost))
	e.log.WithFields(log.Fields{
		"op":           OpImprove,
		"shipments":    len(ships),
		"rejected":     len(rejected),
		"routes":       len(res.Routes),
		"unassigned":   len(res.Unassigned),
		"iterations":   res.Metrics.Iterations,
		"initialCost":  res.Metrics.InitialCost,
		"bestCost":     res.Metrics.BestCost,
		"improvements": res.Metrics.Improvements,
		"status":       res.Status,
		"elapsed":      res.Elapsed,
	}).Info("alns finished")
	return res, nil
}

// SolveLargeInstance runs column generation.
func (e *Engine) SolveLargeInstance(ctx context.Context, shipments []model.Shipment, carriers []model.Carrier, cfg colgen.Config) (colgen.Result, error) {
	res, err := colgen.Solve(ctx, shipments, validCarriers(carriers, e.log), e.builder, cfg)
	if err != nil {
		return colgen.Result{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	metrics.ObserveRun(OpSolve, string(res.Status), res.Elapsed, res.Iterations)
	metrics.ColumnsGenerated.Observe(float64(res.PoolSize))
	metrics.Savings.WithLabelValues(OpSolve).Add(max(0, res.NaiveCost-res.TotalCost))
	e.log.WithFields(log.Fields{
		"op":         OpSolve,
		"shipments":  len(shipments),
		"rejected":   len(res.Rejected),
		"routes":     len(res.Routes),
		"unassigned": len(res.Unassigned),
		"iterations": res.Iterations,
		"columns":    res.PoolSize,
		"cost":       res.TotalCost,
		"naiveCost":  res.NaiveCost,
		"gap":        res.Gap,
		"status":     res.Status,
		"elapsed":    res.Elapsed,
	}).Info("column generation finished")
	return res, nil
}

// PlanResult is the method-neutral view of a Plan call. Exactly one of ALNS
// and ColGen is set.
type PlanResult struct {
	Method        string                `json:"method"`
	Routes        []model.Route         `json:"routes"`
	TotalCost     float64               `json:"totalCost"`
	TotalDistance float64               `json:"totalDistanceMiles"`
	Unassigned    []string              `json:"unassigned"`
	Rejected      []model.RejectedInput `json:"rejected,omitempty"`
	Status        string                `json:"status"`
	Elapsed       time.Duration         `json:"elapsed"`
	ALNS          *opt.Result           `json:"alns,omitempty"`
	ColGen        *colgen.Result        `json:"colgen,omitempty"`
}

// Plan picks ALNS over a greedy seed for instances up to the configured
// threshold and column generation above it.
func (e *Engine) Plan(ctx context.Context, shipments []model.Shipment, carriers []model.Carrier, seed int64) (PlanResult, error) {
	start := time.Now()
	ships, rejected := validShipments(shipments)
	var out PlanResult
	if len(ships) <= e.cfg.LargeInstanceThreshold {
		res, err := e.ImproveAssignment(ctx, nil, ships, carriers, e.cfg.ALNS, seed)
		if err != nil {
			return PlanResult{}, err
		}
		out = PlanResult{Method: "alns", Routes: res.Routes, Unassigned: res.Unassigned, Status: string(res.Status), ALNS: &res}
	} else {
		res, err := e.SolveLargeInstance(ctx, ships, carriers, e.cfg.ColGen)
		if err != nil {
			return PlanResult{}, err
		}
		out = PlanResult{Method: "colgen", Routes: res.Routes, Unassigned: res.Unassigned, Status: string(res.Status), ColGen: &res}
	}
	for _, r := range out.Routes {
		out.TotalCost += r.Cost
		out.TotalDistance += r.DistanceMiles
	}
	if out.Unassigned == nil {
		out.Unassigned = []string{}
	}
	out.Rejected = rejected
	out.Elapsed = time.Since(start)
	e.log.WithFields(log.Fields{
		"op":        OpPlan,
		"method":    out.Method,
		"shipments": len(ships),
		"routes":    len(out.Routes),
		"cost":      out.TotalCost,
		"elapsed":   out.Elapsed,
	}).Debug("plan dispatched")
	return out, nil
}
