// Package model holds the domain records shared by the consolidation engine.
package model

import (
	"errors"
	"fmt"

	"freightpool/internal/geo"
)

var (
	ErrInvalidShipment = errors.New("invalid shipment")
	ErrInvalidCarrier  = errors.New("invalid carrier")
)

// Equipment is the trailer type a shipment needs or a carrier offers.
type Equipment string

const (
	DryVan   Equipment = "dry_van"
	Reefer   Equipment = "reefer"
	Flatbed  Equipment = "flatbed"
	StepDeck Equipment = "step_deck"
)

func (e Equipment) Valid() bool {
	switch e {
	case DryVan, Reefer, Flatbed, StepDeck:
		return true
	}
	return false
}

// ParseEquipment accepts the wire names and a few common spellings.
func ParseEquipment(s string) (Equipment, error) {
	switch s {
	case "dry_van", "dryvan", "van", "DRY_VAN":
		return DryVan, nil
	case "reefer", "REEFER":
		return Reefer, nil
	case "flatbed", "FLATBED":
		return Flatbed, nil
	case "step_deck", "stepdeck", "STEP_DECK":
		return StepDeck, nil
	}
	return "", fmt.Errorf("unknown equipment %q", s)
}

// Location is a geocoded address. State doubles as the administrative region.
type Location struct {
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
	City    string  `json:"city,omitempty" yaml:"city,omitempty"`
	State   string  `json:"state,omitempty" yaml:"state,omitempty"`
	Address string  `json:"address,omitempty" yaml:"address,omitempty"`
}

func (l Location) Point() geo.Point { return geo.Point{Lat: l.Lat, Lon: l.Lon} }

// MilesTo is the great-circle distance to o.
func (l Location) MilesTo(o Location) float64 {
	return geo.HaversineMiles(l.Lat, l.Lon, o.Lat, o.Lon)
}

// Shipment is a freight unit moving from Origin to Destination. The engine
// treats shipments as read-only.
type Shipment struct {
	ID             string     `json:"id" yaml:"id"`
	Origin         Location   `json:"origin" yaml:"origin"`
	Destination    Location   `json:"destination" yaml:"destination"`
	PickupWindow   TimeWindow `json:"pickupWindow" yaml:"pickupWindow"`
	DeliveryWindow TimeWindow `json:"deliveryWindow" yaml:"deliveryWindow"`
	WeightLbs      float64    `json:"weightLbs" yaml:"weightLbs"`
	LinearFeet     float64    `json:"linearFeet" yaml:"linearFeet"`
	CubicFeet      float64    `json:"cubicFeet,omitempty" yaml:"cubicFeet,omitempty"`
	Equipment      Equipment  `json:"equipment" yaml:"equipment"`
	Liftgate       bool       `json:"liftgate,omitempty" yaml:"liftgate,omitempty"`
	Appointment    bool       `json:"appointment,omitempty" yaml:"appointment,omitempty"`
	Hazmat         bool       `json:"hazmat,omitempty" yaml:"hazmat,omitempty"`
}

// Validate reports the first field that makes the shipment unusable.
func (s Shipment) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidShipment)
	case s.WeightLbs <= 0:
		return fmt.Errorf("%w: %s: weight must be positive", ErrInvalidShipment, s.ID)
	case s.LinearFeet <= 0:
		return fmt.Errorf("%w: %s: linear feet must be positive", ErrInvalidShipment, s.ID)
	case !s.Origin.Point().Valid():
		return fmt.Errorf("%w: %s: origin coordinates out of range", ErrInvalidShipment, s.ID)
	case !s.Destination.Point().Valid():
		return fmt.Errorf("%w: %s: destination coordinates out of range", ErrInvalidShipment, s.ID)
	case !s.Equipment.Valid():
		return fmt.Errorf("%w: %s: unknown equipment %q", ErrInvalidShipment, s.ID, s.Equipment)
	case s.PickupWindow.IsZero():
		return fmt.Errorf("%w: %s: pickup window required", ErrInvalidShipment, s.ID)
	case s.DeliveryWindow.IsZero():
		return fmt.Errorf("%w: %s: delivery window required", ErrInvalidShipment, s.ID)
	case s.DeliveryWindow.Latest().Before(s.PickupWindow.Earliest()):
		return fmt.Errorf("%w: %s: delivery window closes before pickup opens", ErrInvalidShipment, s.ID)
	}
	return nil
}

// DistanceMiles is the direct origin to destination distance.
func (s Shipment) DistanceMiles() float64 { return s.Origin.MilesTo(s.Destination) }

// Carrier is one vehicle offer with its capacity and per-mile rate.
type Carrier struct {
	ID             string     `json:"id" yaml:"id"`
	Name           string     `json:"name,omitempty" yaml:"name,omitempty"`
	Equipment      Equipment  `json:"equipment" yaml:"equipment"`
	MaxWeightLbs   float64    `json:"maxWeightLbs" yaml:"maxWeightLbs"`
	MaxLinearFeet  float64    `json:"maxLinearFeet" yaml:"maxLinearFeet"`
	Location       Location   `json:"location" yaml:"location"`
	Availability   TimeWindow `json:"availability,omitempty" yaml:"availability,omitempty"`
	RatePerMile    float64    `json:"ratePerMile,omitempty" yaml:"ratePerMile,omitempty"`
	OnTimePct      float64    `json:"onTimePct,omitempty" yaml:"onTimePct,omitempty"`
	AcceptanceRate float64    `json:"acceptanceRate,omitempty" yaml:"acceptanceRate,omitempty"`
}

func (c Carrier) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidCarrier)
	case !c.Equipment.Valid():
		return fmt.Errorf("%w: %s: unknown equipment %q", ErrInvalidCarrier, c.ID, c.Equipment)
	case c.MaxWeightLbs <= 0 || c.MaxLinearFeet <= 0:
		return fmt.Errorf("%w: %s: capacity must be positive", ErrInvalidCarrier, c.ID)
	case c.RatePerMile < 0:
		return fmt.Errorf("%w: %s: negative rate", ErrInvalidCarrier, c.ID)
	case !c.Location.Point().Valid():
		return fmt.Errorf("%w: %s: location out of range", ErrInvalidCarrier, c.ID)
	}
	return nil
}

// CanHandle reports whether the carrier could haul s on its own.
func (c Carrier) CanHandle(s Shipment) bool {
	return c.Equipment == s.Equipment && s.WeightLbs <= c.MaxWeightLbs && s.LinearFeet <= c.MaxLinearFeet
}

// RejectedInput names an input dropped from a batch and why.
type RejectedInput struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}
