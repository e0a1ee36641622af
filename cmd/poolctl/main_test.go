package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightpool/internal/store"
)

const loads = "id,origin_lat,origin_lon,dest_lat,dest_lon,pickup_earliest,pickup_latest,delivery_earliest,delivery_latest,weight_lbs,linear_feet\n" +
	"a,41.8781,-87.6298,39.7684,-86.1581,2025-03-03T08:00:00Z,2025-03-03T12:00:00Z,2025-03-03T11:00:00Z,2025-03-03T22:00:00Z,10000,15\n" +
	"b,41.8781,-87.6298,39.7684,-86.1581,2025-03-03T09:00:00Z,2025-03-03T13:00:00Z,2025-03-03T11:00:00Z,2025-03-03T22:00:00Z,10000,15\n"

const fleet = `
carriers:
  - id: van-1
    equipment: dry_van
    maxWeightLbs: 45000
    maxLinearFeet: 53
`

const settings = `
logging: {level: error}
optimizer:
  alns: {maxIterations: 100}
`

func writeFiles(t *testing.T) options {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}
	return options{
		shipments: write("loads.csv", loads),
		carriers:  write("fleet.yaml", fleet),
		config:    write("config.yaml", settings),
		seed:      7,
	}
}

func TestRunModes(t *testing.T) {
	for _, mode := range []string{"match", "improve", "solve", "plan"} {
		t.Run(mode, func(t *testing.T) {
			o := writeFiles(t)
			o.mode = mode
			var out bytes.Buffer
			require.NoError(t, run(context.Background(), o, &out))
			var doc map[string]any
			require.NoError(t, json.Unmarshal(out.Bytes(), &doc), out.String())
			assert.Contains(t, doc, "status")
		})
	}
}

func TestRunRecordsToSQLite(t *testing.T) {
	o := writeFiles(t)
	o.mode = "plan"
	o.record = filepath.Join(t.TempDir(), "runs.db")
	require.NoError(t, run(context.Background(), o, &bytes.Buffer{}))

	s, err := store.Open("sqlite", o.record)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runs, err := s.ListRuns(context.Background(), "plan", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Shipments)
	assert.Equal(t, int64(7), runs[0].Seed)
}

func TestRunRejectsBadInput(t *testing.T) {
	o := writeFiles(t)
	o.mode = "teleport"
	assert.Error(t, run(context.Background(), o, &bytes.Buffer{}))

	o = writeFiles(t)
	o.mode = "plan"
	o.shipments = ""
	assert.Error(t, run(context.Background(), o, &bytes.Buffer{}))
}

func TestParseGroups(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, parseGroups("a, b;c;;"))
	assert.Nil(t, parseGroups(""))
}
