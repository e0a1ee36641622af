// Package csvsource reads shipments from header-addressed CSV.
//
// Required columns: id, origin_lat, origin_lon, dest_lat, dest_lon,
// pickup_earliest, pickup_latest, delivery_earliest, delivery_latest,
// weight_lbs, linear_feet. Optional: origin_city, origin_state, dest_city,
// dest_state, cubic_feet, equipment (default dry_van), liftgate,
// appointment, hazmat. Times are RFC3339.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"freightpool/internal/integrations"
	"freightpool/internal/model"
)

var required = []string{
	"id", "origin_lat", "origin_lon", "dest_lat", "dest_lon",
	"pickup_earliest", "pickup_latest", "delivery_earliest", "delivery_latest",
	"weight_lbs", "linear_feet",
}

// Adapter is a ShipmentSource over a file path or an open reader.
type Adapter struct {
	Path   string
	Reader io.Reader
}

func (a Adapter) Name() string { return "csv" }

func (a Adapter) FetchShipments(ctx context.Context) (integrations.Batch, error) {
	if err := ctx.Err(); err != nil {
		return integrations.Batch{}, err
	}
	if a.Reader != nil {
		return Parse(a.Reader)
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return integrations.Batch{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads every row of r. It fails only when the header is unusable;
// bad rows land in Batch.Rejected with their 1-based data row number.
func Parse(r io.Reader) (integrations.Batch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return integrations.Batch{}, errors.New("csv: empty input")
		}
		return integrations.Batch{}, fmt.Errorf("csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return integrations.Batch{}, fmt.Errorf("csv header: missing column %q", name)
		}
	}

	batch := integrations.Batch{Shipments: []model.Shipment{}}
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			batch.Rejected = append(batch.Rejected, integrations.RowError{Row: row, Reason: err.Error()})
			continue
		}
		s, err := parseRow(rowReader{rec: rec, col: col})
		if err == nil {
			err = s.Validate()
		}
		if err != nil {
			batch.Rejected = append(batch.Rejected, integrations.RowError{Row: row, ID: s.ID, Reason: err.Error()})
			continue
		}
		batch.Shipments = append(batch.Shipments, s)
	}
	return batch, nil
}

type rowReader struct {
	rec []string
	col map[string]int
}

func (r rowReader) str(name string) string {
	i, ok := r.col[name]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r rowReader) float(name string, optional bool) (float64, error) {
	v := r.str(name)
	if v == "" && optional {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", name, v)
	}
	return f, nil
}

func (r rowReader) flag(name string) (bool, error) {
	v := r.str(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", name, v)
	}
	return b, nil
}

func (r rowReader) window(from, to string) (model.TimeWindow, error) {
	a, err := time.Parse(time.RFC3339, r.str(from))
	if err != nil {
		return model.TimeWindow{}, fmt.Errorf("%s: %w", from, err)
	}
	b, err := time.Parse(time.RFC3339, r.str(to))
	if err != nil {
		return model.TimeWindow{}, fmt.Errorf("%s: %w", to, err)
	}
	return model.NewTimeWindow(a, b)
}

func parseRow(r rowReader) (model.Shipment, error) {
	s := model.Shipment{
		ID:          r.str("id"),
		Origin:      model.Location{City: r.str("origin_city"), State: r.str("origin_state")},
		Destination: model.Location{City: r.str("dest_city"), State: r.str("dest_state")},
		Equipment:   model.DryVan,
	}
	var err error
	floats := []struct {
		name     string
		dst      *float64
		optional bool
	}{
		{"origin_lat", &s.Origin.Lat, false},
		{"origin_lon", &s.Origin.Lon, false},
		{"dest_lat", &s.Destination.Lat, false},
		{"dest_lon", &s.Destination.Lon, false},
		{"weight_lbs", &s.WeightLbs, false},
		{"linear_feet", &s.LinearFeet, false},
		{"cubic_feet", &s.CubicFeet, true},
	}
	for _, f := range floats {
		if *f.dst, err = r.float(f.name, f.optional); err != nil {
			return s, err
		}
	}
	if s.PickupWindow, err = r.window("pickup_earliest", "pickup_latest"); err != nil {
		return s, err
	}
	if s.DeliveryWindow, err = r.window("delivery_earliest", "delivery_latest"); err != nil {
		return s, err
	}
	if v := r.str("equipment"); v != "" {
		if s.Equipment, err = model.ParseEquipment(v); err != nil {
			return s, err
		}
	}
	if s.Liftgate, err = r.flag("liftgate"); err != nil {
		return s, err
	}
	if s.Appointment, err = r.flag("appointment"); err != nil {
		return s, err
	}
	if s.Hazmat, err = r.flag("hazmat"); err != nil {
		return s, err
	}
	return s, nil
}
