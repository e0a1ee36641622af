package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"freightpool/internal/store"
	"freightpool/internal/webhooks"
)

type runSummary struct {
	op        string
	status    string
	shipments int
	routes    int
	cost      float64
	savings   float64
	seed      int64
	elapsed   time.Duration
}

// finish stores the run, announces it and writes the response.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, sum runSummary, result any) {
	id, err := s.recordRun(r.Context(), sum, result)
	if err != nil {
		s.Log.WithError(err).WithField("op", sum.op).Error("store run failed")
		writeProblem(w, http.StatusInternalServerError, "Store run failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunID: id, Result: result})
}

func (s *Server) recordRun(ctx context.Context, sum runSummary, result any) (string, error) {
	doc, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	run := store.Run{
		ID:        uuid.New().String(),
		Operation: sum.op,
		Status:    sum.status,
		Shipments: sum.shipments,
		Routes:    sum.routes,
		TotalCost: sum.cost,
		Savings:   sum.savings,
		Seed:      sum.seed,
		ElapsedMs: sum.elapsed.Milliseconds(),
		CreatedAt: time.Now().UTC(),
		Result:    doc,
	}
	if err := s.Store.SaveRun(ctx, run); err != nil {
		return "", err
	}

	data := map[string]any{
		"runId":     run.ID,
		"operation": run.Operation,
		"status":    run.Status,
		"shipments": run.Shipments,
		"routes":    run.Routes,
		"totalCost": run.TotalCost,
		"savings":   run.Savings,
		"elapsedMs": run.ElapsedMs,
	}
	if s.Broker != nil {
		s.Broker.Publish(TopicRuns, Event{Type: webhooks.EventRunCompleted, Data: data})
	}
	if n, err := s.Notifier.Emit(ctx, webhooks.EventRunCompleted, data); err != nil {
		s.Log.WithError(err).WithField("runId", run.ID).Warn("webhook enqueue failed")
	} else if n > 0 {
		s.Log.WithFields(log.Fields{"runId": run.ID, "queued": n}).Debug("webhooks queued")
	}
	return run.ID, nil
}
