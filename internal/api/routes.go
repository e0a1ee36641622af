package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"freightpool/internal/metrics"
)

// Routes builds the service mux.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}

	// Inputs
	handle("/v1/shipments", s.ShipmentsHandler)
	handle("/v1/shipments/import", s.ShipmentsImportHandler)
	handle("/v1/carriers", s.CarriersHandler)

	// Compute
	handle("/v1/pools/match", s.limited(s.MatchHandler))
	handle("/v1/assignments/improve", s.limited(s.ImproveHandler))
	handle("/v1/instances/solve", s.limited(s.SolveHandler))
	handle("/v1/plan", s.limited(s.PlanHandler))

	// Runs
	handle("/v1/runs", s.RunsHandler)
	handle("/v1/runs/", s.RunByIDHandler)
	handle("/v1/runs/stream", s.RunStreamHandler)

	// Admin
	handle("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Health
	handle("/healthz", s.HealthHandler)
	handle("/readyz", s.ReadyHandler)
	handle("/debug/info", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}
