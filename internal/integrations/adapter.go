package integrations

import (
	"context"
	"fmt"

	"freightpool/internal/model"
)

// ShipmentSource is an external feed of shipments to consolidate.
type ShipmentSource interface {
	Name() string
	FetchShipments(ctx context.Context) (Batch, error)
}

// Batch is one pull from a source. Rows that could not be turned into a
// valid shipment are reported instead of failing the whole batch.
type Batch struct {
	Shipments []model.Shipment `json:"shipments"`
	Rejected  []RowError       `json:"rejected,omitempty"`
}

type RowError struct {
	Row    int    `json:"row"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("row %d (%s): %s", e.Row, e.ID, e.Reason)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}
