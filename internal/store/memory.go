package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"freightpool/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	shipments  map[string]model.Shipment
	carriers   map[string]model.Carrier
	runs       map[string]Run
	runOrder   []string // insertion order
	deliveries map[string]*WebhookDelivery
	delOrder   []string
	dedup      map[string]bool // eventType|url|key
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		shipments:  map[string]model.Shipment{},
		carriers:   map[string]model.Carrier{},
		runs:       map[string]Run{},
		deliveries: map[string]*WebhookDelivery{},
		dedup:      map[string]bool{},
		now:        time.Now,
	}
}

func (m *Memory) PutShipments(ctx context.Context, shipments []model.Shipment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range shipments {
		m.shipments[s.ID] = s
	}
	return len(shipments), nil
}

func (m *Memory) ListShipments(ctx context.Context, ids []string) ([]model.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pick(m.shipments, ids, "shipment")
}

func (m *Memory) PutCarriers(ctx context.Context, carriers []model.Carrier) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range carriers {
		m.carriers[c.ID] = c
	}
	return len(carriers), nil
}

func (m *Memory) ListCarriers(ctx context.Context, ids []string) ([]model.Carrier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pick(m.carriers, ids, "carrier")
}

// pick returns every value sorted by key when ids is nil, otherwise the
// named values in order.
func pick[T any](all map[string]T, ids []string, kind string) ([]T, error) {
	if ids == nil {
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ids = keys
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, ok := all[id]
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) SaveRun(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.runOrder = append(m.runOrder, run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return r, nil
}

// ListRuns returns the newest runs first, without their result documents.
func (m *Memory) ListRuns(ctx context.Context, operation string, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Run{}
	for i := len(m.runOrder) - 1; i >= 0; i-- {
		r := m.runs[m.runOrder[i]]
		if operation != "" && r.Operation != operation {
			continue
		}
		r.Result = nil
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// EnqueueWebhook returns an empty id when an identical event was already
// queued for the same URL.
func (m *Memory) EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventType + "|" + url + "|" + computeDedupKey(payload)
	if m.dedup[key] {
		return "", nil
	}
	m.dedup[key] = true
	now := m.now()
	d := &WebhookDelivery{
		ID:            uuid.New().String(),
		EventType:     eventType,
		URL:           url,
		Secret:        secret,
		Payload:       payload,
		Status:        DeliveryPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	m.deliveries[d.ID] = d
	m.delOrder = append(m.delOrder, d.ID)
	return d.ID, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []WebhookDelivery{}
	for _, id := range m.delOrder {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		d.LastError = ""
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = m.now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []WebhookDelivery{}
	for i := len(m.delOrder) - 1; i >= 0; i-- {
		d := m.deliveries[m.delOrder[i]]
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, *d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
