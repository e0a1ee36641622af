package api

import (
	"net/http"
	"time"

	"freightpool/internal/buildinfo"
)

// DebugJSON reports build metadata and a secret-free view of the settings.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	opt := s.Engine.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":                   s.cfg.Server.Port,
			"rateRps":                s.cfg.Server.RateRPS,
			"rateBurst":              s.cfg.Server.RateBurst,
			"databaseDriver":         s.cfg.Database.Driver,
			"hasDatabaseUrl":         s.cfg.Database.URL != "",
			"hasRedisUrl":            s.cfg.Redis.URL != "",
			"webhookUrls":            len(s.cfg.Webhooks.URLs),
			"webhookMaxAttempts":     s.cfg.Webhooks.MaxAttempts,
			"largeInstanceThreshold": opt.LargeInstanceThreshold,
			"costPerMile":            opt.CostPerMile,
		},
	})
}
