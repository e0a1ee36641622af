package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"freightpool/internal/store"
)

// EventRunCompleted is emitted after every engine run is stored.
const EventRunCompleted = "run.completed"

// Notifier queues events for every configured URL.
type Notifier struct {
	Store  store.Store
	URLs   []string
	Secret string
}

func NewNotifier(s store.Store, urls []string, secret string) *Notifier {
	return &Notifier{Store: s, URLs: append([]string(nil), urls...), Secret: secret}
}

// Enabled reports whether any URL is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.URLs) > 0 }

// Emit enqueues one delivery per URL and returns how many were queued.
func (n *Notifier) Emit(ctx context.Context, eventType string, data any) (int, error) {
	if !n.Enabled() {
		return 0, nil
	}
	body, err := json.Marshal(map[string]any{
		"id":   "evt_" + uuid.New().String(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, u := range n.URLs {
		id, err := n.Store.EnqueueWebhook(ctx, eventType, u, n.Secret, body)
		if err != nil {
			return queued, err
		}
		if id != "" {
			queued++
		}
	}
	return queued, nil
}
