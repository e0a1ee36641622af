package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"freightpool/internal/model"
)

// Store is the persistence interface used by the API server. The
// optimization core never sees it.
type Store interface {
	// Shipments and carriers are upserted by ID. List with nil ids returns
	// everything ordered by ID; with ids it returns them in the order given
	// and ErrNotFound if any is missing.
	PutShipments(ctx context.Context, shipments []model.Shipment) (int, error)
	ListShipments(ctx context.Context, ids []string) ([]model.Shipment, error)
	PutCarriers(ctx context.Context, carriers []model.Carrier) (int, error)
	ListCarriers(ctx context.Context, ids []string) ([]model.Carrier, error)

	// Runs
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, operation string, limit int) ([]Run, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error)

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// Run is the stored record of one engine call.
type Run struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Status    string          `json:"status"`
	Shipments int             `json:"shipments"`
	Routes    int             `json:"routes"`
	TotalCost float64         `json:"totalCost"`
	Savings   float64         `json:"savings"`
	Seed      int64           `json:"seed,omitempty"`
	ElapsedMs int64           `json:"elapsedMs"`
	CreatedAt time.Time       `json:"createdAt"`
	Result    json.RawMessage `json:"result,omitempty"`
}
