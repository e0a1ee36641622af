package csvsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightpool/internal/integrations"
	"freightpool/internal/model"
)

const header = "id,origin_lat,origin_lon,origin_city,dest_lat,dest_lon,pickup_earliest,pickup_latest,delivery_earliest,delivery_latest,weight_lbs,linear_feet,equipment,liftgate\n"

func TestParse(t *testing.T) {
	in := header +
		"s1,41.8781,-87.6298,Chicago,39.7684,-86.1581,2025-03-03T08:00:00Z,2025-03-03T12:00:00Z,2025-03-03T09:00:00Z,2025-03-03T23:00:00Z,12000,20,reefer,true\n" +
		"s2,41.8781,-87.6298,Chicago,39.7684,-86.1581,2025-03-03T08:00:00Z,2025-03-03T12:00:00Z,2025-03-03T09:00:00Z,2025-03-03T23:00:00Z,9000,14,,\n"
	batch, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, batch.Shipments, 2)
	assert.Empty(t, batch.Rejected)

	s := batch.Shipments[0]
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, "Chicago", s.Origin.City)
	assert.Equal(t, model.Reefer, s.Equipment)
	assert.True(t, s.Liftgate)
	assert.Equal(t, 4.0, s.PickupWindow.Hours())
	assert.Equal(t, model.DryVan, batch.Shipments[1].Equipment)
}

func TestParseReportsBadRows(t *testing.T) {
	in := header +
		"ok,41.8781,-87.6298,,39.7684,-86.1581,2025-03-03T08:00:00Z,2025-03-03T12:00:00Z,2025-03-03T09:00:00Z,2025-03-03T23:00:00Z,12000,20,,\n" +
		"heavy,41.8781,-87.6298,,39.7684,-86.1581,2025-03-03T08:00:00Z,2025-03-03T12:00:00Z,2025-03-03T09:00:00Z,2025-03-03T23:00:00Z,abc,20,,\n" +
		"late,41.8781,-87.6298,,39.7684,-86.1581,2025-03-03T12:00:00Z,2025-03-03T08:00:00Z,2025-03-03T09:00:00Z,2025-03-03T23:00:00Z,12000,20,,\n" +
		"zero,41.8781,-87.6298,,39.7684,-86.1581,2025-03-03T08:00:00Z,2025-03-03T12:00:00Z,2025-03-03T09:00:00Z,2025-03-03T23:00:00Z,0,20,,\n" +
		"boat,41.8781,-87.6298,,39.7684,-86.1581,2025-03-03T08:00:00Z,2025-03-03T12:00:00Z,2025-03-03T09:00:00Z,2025-03-03T23:00:00Z,100,20,boat,\n"
	batch, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, batch.Shipments, 1)
	require.Len(t, batch.Rejected, 4)

	assert.Equal(t, integrations.RowError{Row: 2, ID: "heavy", Reason: `weight_lbs: "abc" is not a number`}, batch.Rejected[0])
	assert.Equal(t, "late", batch.Rejected[1].ID)
	assert.Contains(t, batch.Rejected[1].Reason, "invalid time window")
	assert.Contains(t, batch.Rejected[2].Reason, "weight must be positive")
	assert.Equal(t, 5, batch.Rejected[3].Row)
}

func TestParseHeaderErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("id,origin_lat\n"))
	assert.ErrorContains(t, err, "missing column")
}

func TestAdapterFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipments.csv")
	row := "f1,41.8781,-87.6298,,39.7684,-86.1581,2025-03-03T08:00:00Z,2025-03-03T12:00:00Z,2025-03-03T09:00:00Z,2025-03-03T23:00:00Z,12000,20,,\n"
	require.NoError(t, os.WriteFile(path, []byte(header+row), 0o600))

	var src integrations.ShipmentSource = Adapter{Path: path}
	assert.Equal(t, "csv", src.Name())
	batch, err := src.FetchShipments(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Shipments, 1)
	assert.Equal(t, "f1", batch.Shipments[0].ID)

	_, err = Adapter{Path: filepath.Join(t.TempDir(), "missing.csv")}.FetchShipments(context.Background())
	assert.Error(t, err)
}
