package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"freightpool/internal/metrics"
	"freightpool/internal/store"
)

type Worker struct {
	Store        store.Store
	HTTP         *http.Client
	MaxAttempts  int
	PollInterval time.Duration
	BatchSize    int
	Log          *log.Entry

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewWorker(s store.Store, maxAttempts int, poll, timeout time.Duration) *Worker {
	if maxAttempts < 1 {
		maxAttempts = 10
	}
	if poll <= 0 {
		poll = time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{
		Store:        s,
		HTTP:         &http.Client{Timeout: timeout},
		MaxAttempts:  maxAttempts,
		PollInterval: poll,
		BatchSize:    50,
		Log:          log.WithField("component", "webhooks"),
	}
}

// Start polls for due deliveries until Stop is called.
func (w *Worker) Start() {
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

// Stop ends the poll loop and waits for the current batch.
func (w *Worker) Stop() {
	if w.stop == nil {
		return
	}
	w.once.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.BatchSize)
	if err != nil {
		w.logger().WithError(err).Warn("fetch due deliveries")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	success := false
	next := time.Now().Add(nextBackoff(it.Attempts))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set(SignatureHeader, SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	} else {
		code = resp.StatusCode
		_ = resp.Body.Close()
		if code >= 200 && code < 300 {
			success = true
		} else {
			lastErr = "status " + strconv.Itoa(code)
		}
	}

	outcome := "delivered"
	switch {
	case success:
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		outcome = "failed"
		err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
	default:
		outcome = "retry"
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, outcome).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, outcome).Observe(float64(latency))
	entry := w.logger().WithFields(log.Fields{"delivery": it.ID, "url": it.URL, "attempt": it.Attempts + 1, "outcome": outcome, "code": code})
	if err != nil {
		entry.WithError(err).Warn("record delivery outcome")
	} else if !success {
		entry.Debug(lastErr)
	}
}

func (w *Worker) logger() *log.Entry {
	if w.Log == nil {
		return log.WithField("component", "webhooks")
	}
	return w.Log
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
