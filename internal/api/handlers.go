package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"freightpool/internal/config"
	"freightpool/internal/engine"
	"freightpool/internal/integrations/csvsource"
	"freightpool/internal/model"
	"freightpool/internal/pooling"
)

// ShipmentsHandler handles POST/GET /v1/shipments
func (s *Server) ShipmentsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in []model.Shipment
		if err := decodeJSON(r, &in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		valid := make([]model.Shipment, 0, len(in))
		rejected := []model.RejectedInput{}
		for _, sh := range in {
			if err := sh.Validate(); err != nil {
				rejected = append(rejected, model.RejectedInput{ID: sh.ID, Reason: err.Error()})
				continue
			}
			valid = append(valid, sh)
		}
		n, err := s.Store.PutShipments(r.Context(), valid)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Store shipments failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"stored": n, "rejected": rejected})
	case http.MethodGet:
		items, err := s.Store.ListShipments(r.Context(), idsParam(r))
		if err != nil {
			s.storeProblem(w, r, "List shipments failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ShipmentsImportHandler handles POST /v1/shipments/import with a CSV body.
func (s *Server) ShipmentsImportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	batch, err := csvsource.Parse(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
		return
	}
	n, err := s.Store.PutShipments(r.Context(), batch.Shipments)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store shipments failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"stored": n, "rejected": batch.Rejected})
}

// CarriersHandler handles POST/GET /v1/carriers
func (s *Server) CarriersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in []model.Carrier
		if err := decodeJSON(r, &in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		valid := make([]model.Carrier, 0, len(in))
		rejected := []model.RejectedInput{}
		for _, c := range in {
			if err := c.Validate(); err != nil {
				rejected = append(rejected, model.RejectedInput{ID: c.ID, Reason: err.Error()})
				continue
			}
			valid = append(valid, c)
		}
		n, err := s.Store.PutCarriers(r.Context(), valid)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Store carriers failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"stored": n, "rejected": rejected})
	case http.MethodGet:
		items, err := s.Store.ListCarriers(r.Context(), idsParam(r))
		if err != nil {
			s.storeProblem(w, r, "List carriers failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// MatchHandler handles POST /v1/pools/match
func (s *Server) MatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	cfg, err := poolingOverrides(s.Engine.Config().Pooling, &req)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid pooling config", err.Error(), r.URL.Path)
		return
	}
	ships, carriers, err := s.resolve(r.Context(), req.instanceRequest)
	if err != nil {
		s.storeProblem(w, r, "Load instance failed", err)
		return
	}
	eng := s.Engine
	if len(req.Probabilities) > 0 {
		p := pooling.StaticPredictor{}
		for k, v := range req.Probabilities {
			p[model.GroupKey(splitIDs(k))] = v
		}
		if eng, err = s.engineFor(s.Engine.Config(), engine.WithPredictor(p)); err != nil {
			s.engineProblem(w, r, err)
			return
		}
	}
	res, err := eng.MatchPools(r.Context(), ships, carriers, cfg)
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	var pooled float64
	for _, o := range res.Opportunities {
		pooled += o.PooledCost
	}
	s.finish(w, r, runSummary{
		op: engine.OpMatch, status: string(res.Status), shipments: len(ships),
		routes: len(res.Opportunities), cost: pooled, savings: res.TotalSavings, elapsed: res.Elapsed,
	}, res)
}

// ImproveHandler handles POST /v1/assignments/improve
func (s *Server) ImproveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req improveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	cfg, err := alnsOverrides(s.Engine.Config().ALNS, req.ALNS, req.TimeLimitMs)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid alns config", err.Error(), r.URL.Path)
		return
	}
	ships, carriers, err := s.resolve(r.Context(), req.instanceRequest)
	if err != nil {
		s.storeProblem(w, r, "Load instance failed", err)
		return
	}
	res, err := s.Engine.ImproveAssignment(r.Context(), req.Groups, ships, carriers, cfg, req.Seed)
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	s.finish(w, r, runSummary{
		op: engine.OpImprove, status: string(res.Status), shipments: len(ships), routes: len(res.Routes),
		cost: routeCost(res.Routes), savings: max(0, res.Metrics.InitialCost-res.Metrics.BestCost),
		seed: req.Seed, elapsed: res.Elapsed,
	}, res)
}

// SolveHandler handles POST /v1/instances/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req solveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	cfg, err := colgenOverrides(s.Engine.Config().ColGen, req.ColGen, req.TimeLimitMs)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid colgen config", err.Error(), r.URL.Path)
		return
	}
	ships, carriers, err := s.resolve(r.Context(), req.instanceRequest)
	if err != nil {
		s.storeProblem(w, r, "Load instance failed", err)
		return
	}
	res, err := s.Engine.SolveLargeInstance(r.Context(), ships, carriers, cfg)
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	s.finish(w, r, runSummary{
		op: engine.OpSolve, status: string(res.Status), shipments: len(ships), routes: len(res.Routes),
		cost: res.TotalCost, savings: max(0, res.NaiveCost-res.TotalCost), elapsed: res.Elapsed,
	}, res)
}

// PlanHandler handles POST /v1/plan
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	cfg, err := planOverrides(s.Engine.Config(), &req)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimizer config", err.Error(), r.URL.Path)
		return
	}
	ships, carriers, err := s.resolve(r.Context(), req.instanceRequest)
	if err != nil {
		s.storeProblem(w, r, "Load instance failed", err)
		return
	}
	eng := s.Engine
	if len(req.ALNS) > 0 || len(req.ColGen) > 0 {
		if eng, err = s.engineFor(cfg); err != nil {
			s.engineProblem(w, r, err)
			return
		}
	}
	res, err := eng.Plan(r.Context(), ships, carriers, req.Seed)
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	var savings float64
	switch {
	case res.ALNS != nil:
		savings = res.ALNS.Metrics.InitialCost - res.ALNS.Metrics.BestCost
	case res.ColGen != nil:
		savings = res.ColGen.NaiveCost - res.ColGen.TotalCost
	}
	s.finish(w, r, runSummary{
		op: engine.OpPlan, status: res.Status, shipments: len(ships), routes: len(res.Routes),
		cost: res.TotalCost, savings: max(0, savings), seed: req.Seed, elapsed: res.Elapsed,
	}, res)
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit < 1 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
			return
		}
	}
	items, err := s.Store.ListRuns(r.Context(), r.URL.Query().Get("operation"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// RunByIDHandler handles GET /v1/runs/{id}
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		s.storeProblem(w, r, "Get run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Admin: webhook deliveries list
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) engineFor(cfg config.Optimizer, opts ...engine.Option) (*engine.Engine, error) {
	return engine.New(cfg, append([]engine.Option{engine.WithLogger(s.Log.WithField("component", "engine"))}, opts...)...)
}

func (s *Server) engineProblem(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, config.ErrInvalid) {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	s.Log.WithError(err).WithField("path", r.URL.Path).Error("engine call failed")
	writeProblem(w, http.StatusInternalServerError, "Engine failure", err.Error(), r.URL.Path)
}

func (s *Server) storeProblem(w http.ResponseWriter, r *http.Request, title string, err error) {
	if isNotFound(err) {
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
}

func idsParam(r *http.Request) []string {
	v := r.URL.Query().Get("ids")
	if v == "" {
		return nil
	}
	return splitIDs(v)
}

func splitIDs(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func routeCost(routes []model.Route) float64 {
	var c float64
	for _, rt := range routes {
		c += rt.Cost
	}
	return c
}
