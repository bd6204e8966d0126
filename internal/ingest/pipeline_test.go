package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dreadnought-systems/airwatch/internal/bus"
	"github.com/dreadnought-systems/airwatch/internal/dedupe"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/dreadnought-systems/airwatch/internal/predict"
	"github.com/dreadnought-systems/airwatch/internal/store"
	"github.com/dreadnought-systems/airwatch/internal/threat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p, err := New(st, dedupe.New(), bus.New(0, 0), threat.DefaultWeights, predict.DefaultParams)
	require.NoError(t, err)
	return p, st
}

func trackID(s string) *string { return &s }

func TestIngest_BenignCruiseProducesNoAlert(t *testing.T) {
	p, _ := newTestPipeline(t)
	res, err := p.Ingest(context.Background(), model.TelemetryInput{
		TransponderID: trackID("N1"),
		Latitude:      34.0, Longitude: -118.0,
		Altitude: 35000, GroundSpeed: 450, Track: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Flight.ThreatScore)
	assert.Nil(t, res.Alert)
}

func TestIngest_ZoneIntrusionRaisesAlert(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	// A square covering the point we'll send.
	_, err := st.UpsertRegion(ctx, "test-zone",
		`{"type":"Polygon","coordinates":[[[-119,33],[-119,35],[-117,35],[-117,33],[-119,33]]]}`)
	require.NoError(t, err)
	require.NoError(t, p.RefreshRegions(ctx))

	res, err := p.Ingest(ctx, model.TelemetryInput{
		TransponderID: trackID("N2"),
		Latitude:      34.0, Longitude: -118.0,
		Altitude: 3000, GroundSpeed: 150, Track: 0,
	})
	require.NoError(t, err)
	assert.True(t, res.Flight.InRestrictedArea)
	require.NotNil(t, res.Alert)
	assert.Equal(t, string(model.ThreatHigh), res.Alert.Severity)
}

func TestIngest_RepeatedIntrusionDoesNotDuplicateAlert(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	_, err := st.UpsertRegion(ctx, "test-zone",
		`{"type":"Polygon","coordinates":[[[-119,33],[-119,35],[-117,35],[-117,33],[-119,33]]]}`)
	require.NoError(t, err)
	require.NoError(t, p.RefreshRegions(ctx))

	in := model.TelemetryInput{
		TransponderID: trackID("N3"),
		Latitude:      34.0, Longitude: -118.0,
		Altitude: 3000, GroundSpeed: 150, Track: 0,
	}

	res1, err := p.Ingest(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, res1.Alert)

	res2, err := p.Ingest(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, res2.Alert)

	alerts, err := st.ListRecentAlerts(ctx, store.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestIngest_RejectsOutOfRangeLatitude(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Ingest(context.Background(), model.TelemetryInput{
		Latitude: 200, Longitude: 0, Altitude: 1000, GroundSpeed: 100, Track: 0,
	})
	assert.Error(t, err)
}

func TestIngest_ClearingIntrusionAutoClosesAfterTwoSamples(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	_, err := st.UpsertRegion(ctx, "test-zone",
		`{"type":"Polygon","coordinates":[[[-119,33],[-119,35],[-117,35],[-117,33],[-119,33]]]}`)
	require.NoError(t, err)
	require.NoError(t, p.RefreshRegions(ctx))

	inside := model.TelemetryInput{
		TransponderID: trackID("N4"),
		Latitude:      34.0, Longitude: -118.0,
		Altitude: 3000, GroundSpeed: 150, Track: 0,
	}
	outside := inside
	outside.Latitude = 10.0

	_, err = p.Ingest(ctx, inside)
	require.NoError(t, err)

	_, err = p.Ingest(ctx, outside)
	require.NoError(t, err)
	_, err = p.Ingest(ctx, outside)
	require.NoError(t, err)

	unresolved, err := st.ListUnresolvedAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, unresolved, 0)
}
