package api

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"freightpool/internal/config"
	"freightpool/internal/engine"
	"freightpool/internal/store"
	"freightpool/internal/webhooks"
)

type Server struct {
	Engine   *engine.Engine
	Store    store.Store
	Broker   EventBroker
	Notifier *webhooks.Notifier
	// Limiter guards the compute endpoints. Nil disables limiting.
	Limiter *rate.Limiter
	Log     *log.Entry

	cfg config.Config
}

// NewServer wires a Server from cfg. An empty database URL selects the
// in-memory store and an empty Redis URL the in-process broker.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	lg := log.WithField("component", "api")
	eng, err := engine.New(cfg.Optimizer, engine.WithLogger(log.WithField("component", "engine")))
	if err != nil {
		return nil, err
	}

	var s store.Store
	if cfg.Database.URL == "" {
		s = store.NewMemory()
	} else {
		sq, err := store.Open(cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if cfg.Database.Migrate {
			if err := sq.Migrate(ctx); err != nil {
				_ = sq.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		s = sq
	}

	var broker EventBroker = NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			lg.WithError(err).Warn("redis broker unavailable, using in-process broker")
		} else {
			broker = rb
		}
	}

	srv := &Server{
		Engine:   eng,
		Store:    s,
		Broker:   broker,
		Notifier: webhooks.NewNotifier(s, cfg.Webhooks.URLs, cfg.Webhooks.Secret),
		Log:      lg,
		cfg:      cfg,
	}
	if cfg.Server.RateRPS > 0 {
		srv.Limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), max(1, cfg.Server.RateBurst))
	}
	return srv, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.cfg.Webhooks.MaxAttempts, s.cfg.Webhooks.PollInterval, s.cfg.Webhooks.Timeout)
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
	var first error
	for _, v := range []any{s.Broker, s.Store} {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
