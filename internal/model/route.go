package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// StopKind tags a stop as the pickup or the delivery of its shipment.
type StopKind int

const (
	Pickup StopKind = iota
	Delivery
)

func (k StopKind) String() string {
	if k == Delivery {
		return "delivery"
	}
	return "pickup"
}

func (k StopKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *StopKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "pickup":
		*k = Pickup
	case "delivery":
		*k = Delivery
	default:
		return fmt.Errorf("unknown stop kind %q", s)
	}
	return nil
}

// Stop is one scheduled visit on a route.
type Stop struct {
	Location     Location   `json:"location"`
	ShipmentID   string     `json:"shipmentId"`
	Kind         StopKind   `json:"kind"`
	Sequence     int        `json:"sequence"`
	Arrival      time.Time  `json:"arrival"`
	ServiceStart time.Time  `json:"serviceStart"`
	Departure    time.Time  `json:"departure"`
	Window       TimeWindow `json:"window"`
}

// Route is an ordered stop list served by one vehicle.
type Route struct {
	ID                   string   `json:"id,omitempty"`
	VehicleID            string   `json:"vehicleId,omitempty"`
	Stops                []Stop   `json:"stops"`
	ShipmentIDs          []string `json:"shipmentIds"`
	DistanceMiles        float64  `json:"distanceMiles"`
	DurationHours        float64  `json:"durationHours"`
	WeightUtilization    float64  `json:"weightUtilization"`
	FootprintUtilization float64  `json:"footprintUtilization"`
	Utilization          float64  `json:"utilization"`
	Cost                 float64  `json:"cost"`
}

// CheckPairing verifies every delivery follows its pickup on this route and
// every pickup has a delivery.
func (r Route) CheckPairing() error {
	picked := make(map[string]bool, len(r.Stops)/2)
	delivered := make(map[string]bool, len(r.Stops)/2)
	for _, st := range r.Stops {
		switch st.Kind {
		case Pickup:
			if picked[st.ShipmentID] {
				return fmt.Errorf("shipment %s picked up twice", st.ShipmentID)
			}
			picked[st.ShipmentID] = true
		case Delivery:
			if !picked[st.ShipmentID] {
				return fmt.Errorf("shipment %s delivered before pickup", st.ShipmentID)
			}
			if delivered[st.ShipmentID] {
				return fmt.Errorf("shipment %s delivered twice", st.ShipmentID)
			}
			delivered[st.ShipmentID] = true
		}
	}
	for id := range picked {
		if !delivered[id] {
			return fmt.Errorf("shipment %s never delivered", id)
		}
	}
	return nil
}
