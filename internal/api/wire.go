package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"freightpool/internal/model"
	"freightpool/internal/store"
)

const maxBody = 16 << 20

// instanceRequest names the shipments and carriers of a compute call. Inline
// records win over IDs; with neither the whole stored set is used.
type instanceRequest struct {
	ShipmentIDs []string         `json:"shipmentIds"`
	Shipments   []model.Shipment `json:"shipments"`
	CarrierIDs  []string         `json:"carrierIds"`
	Carriers    []model.Carrier  `json:"carriers"`
}

type matchRequest struct {
	instanceRequest
	Pooling json.RawMessage `json:"pooling"`
	// Probabilities maps comma-joined shipment IDs to a pooling probability.
	Probabilities map[string]float64 `json:"probabilities"`
}

type improveRequest struct {
	instanceRequest
	Groups      [][]string      `json:"groups"`
	Seed        int64           `json:"seed"`
	ALNS        json.RawMessage `json:"alns"`
	TimeLimitMs *int64          `json:"timeLimitMs"`
}

type solveRequest struct {
	instanceRequest
	ColGen      json.RawMessage `json:"colgen"`
	TimeLimitMs *int64          `json:"timeLimitMs"`
}

type planRequest struct {
	instanceRequest
	Seed   int64           `json:"seed"`
	ALNS   json.RawMessage `json:"alns"`
	ColGen json.RawMessage `json:"colgen"`
}

type runResponse struct {
	RunID  string `json:"runId"`
	Result any    `json:"result"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

// resolve loads whatever the request names by ID.
func (s *Server) resolve(ctx context.Context, in instanceRequest) ([]model.Shipment, []model.Carrier, error) {
	ships := in.Shipments
	if ships == nil {
		var err error
		if ships, err = s.Store.ListShipments(ctx, in.ShipmentIDs); err != nil {
			return nil, nil, fmt.Errorf("load shipments: %w", err)
		}
	}
	carriers := in.Carriers
	if carriers == nil {
		var err error
		if carriers, err = s.Store.ListCarriers(ctx, in.CarrierIDs); err != nil {
			return nil, nil, fmt.Errorf("load carriers: %w", err)
		}
	}
	return ships, carriers, nil
}

// overlay decodes a partial JSON object onto dst, leaving absent fields at
// their current values.
func overlay(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
