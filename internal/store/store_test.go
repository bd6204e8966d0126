package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dreadnought-systems/airwatch/internal/apierr"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleFlight(id string) model.Flight {
	return model.Flight{
		TransponderID:       &id,
		Latitude:            34.05,
		Longitude:           -118.25,
		Altitude:            12000,
		GroundSpeed:         250,
		Track:               90,
		Timestamp:           time.Now().UTC(),
		Classification:      model.ClassAirliner,
		ThreatLevel:         model.ThreatLow,
		ThreatScore:         0,
		ThreatReasons:       []string{},
		RecommendedAction:   "monitor",
		PredictedTrajectory: []model.TrajectoryPoint{{Lat: 34.06, Lon: -118.24, OffsetSec: 30}},
		DetectionConfidence: 95,
		SignalStrength:      80,
		WeatherCondition:    "clear",
		InRestrictedArea:    false,
	}
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListRecentFlights(context.Background(), 10, false)
	assert.NoError(t, err)
}

func TestInsertAndListFlights(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertFlight(ctx, sampleFlight("N12345"))
	require.NoError(t, err)
	assert.Positive(t, id)

	flights, err := s.ListRecentFlights(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "N12345", flights[0].ExternalID())
	assert.Equal(t, model.ClassAirliner, flights[0].Classification)
	require.Len(t, flights[0].PredictedTrajectory, 1)
	assert.InDelta(t, 34.06, flights[0].PredictedTrajectory[0].Lat, 1e-9)
}

func TestListRecentFlights_SnapshotOnlyKeepsLatestPerIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := sampleFlight("N12345")
	older.Timestamp = time.Now().Add(-time.Minute).UTC()
	older.Altitude = 9000
	_, err := s.InsertFlight(ctx, older)
	require.NoError(t, err)

	newer := sampleFlight("N12345")
	newer.Altitude = 11000
	_, err = s.InsertFlight(ctx, newer)
	require.NoError(t, err)

	_, err = s.InsertFlight(ctx, sampleFlight("N99999"))
	require.NoError(t, err)

	flights, err := s.ListRecentFlights(ctx, 10, true)
	require.NoError(t, err)
	require.Len(t, flights, 2)
	for _, f := range flights {
		if f.ExternalID() == "N12345" {
			assert.Equal(t, 11000.0, f.Altitude)
		}
	}
}

func TestRegionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.UpsertRegion(ctx, "zone-a", `{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[1,0],[0,0]]]}`)
	require.NoError(t, err)
	assert.True(t, r.Active)

	active, err := s.GetActiveRegions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, s.ToggleRegion(ctx, r.ID))
	active, err = s.GetActiveRegions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 0)

	all, err := s.ListRegions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteRegion(ctx, r.ID))
	all, err = s.ListRegions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 0)
}

func TestToggleRegion_MissingIDIsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.ToggleRegion(context.Background(), 9999)
	require.Error(t, err)
}

func TestAlertLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	flightID, err := s.InsertFlight(ctx, sampleFlight("N55555"))
	require.NoError(t, err)

	alert := model.Alert{
		FlightID:          flightID,
		TransponderID:     "N55555",
		RegionID:          1,
		Severity:          "High",
		Message:           "intrusion",
		ThreatReasons:     []string{"zone intrusion"},
		RecommendedAction: "escalate",
	}
	alertID, err := s.InsertAlert(ctx, alert)
	require.NoError(t, err)

	unresolved, err := s.ListUnresolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, alertID, unresolved[0].ID)

	require.NoError(t, s.ResolveAlert(ctx, alertID))
	unresolved, err = s.ListUnresolvedAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, unresolved, 0)

	// idempotent
	require.NoError(t, s.ResolveAlert(ctx, alertID))

	err = s.ResolveAlert(ctx, 987654)
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.NotFound, apiErr.Kind)
}

func TestOperatorRegistrationRejectsDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateOperator(ctx, "a@example.com", "hash", model.RoleAdmin)
	require.NoError(t, err)

	_, err = s.CreateOperator(ctx, "a@example.com", "hash2", model.RoleAnalyst)
	require.Error(t, err)

	op, err := s.GetOperatorByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, op.Role)
}

func TestGetOperatorByEmail_UnknownIsUnauthenticated(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetOperatorByEmail(context.Background(), "nobody@example.com")
	require.Error(t, err)
}

func TestCountOperators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.CountOperators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.CreateOperator(ctx, "first@example.com", "hash", model.RoleAdmin)
	require.NoError(t, err)

	n, err = s.CountOperators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweep_RemovesOldFlightsAndResolvedAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := sampleFlight("N11111")
	old.Timestamp = time.Now().Add(-48 * time.Hour).UTC()
	_, err := s.InsertFlight(ctx, old)
	require.NoError(t, err)

	fresh := sampleFlight("N22222")
	freshID, err := s.InsertFlight(ctx, fresh)
	require.NoError(t, err)

	oldAlert := model.Alert{FlightID: freshID, TransponderID: "N22222", RegionID: 1, Severity: "High", Resolved: true}
	oldAlertID, err := s.InsertAlert(ctx, oldAlert)
	require.NoError(t, err)
	require.NoError(t, s.ResolveAlert(ctx, oldAlertID))

	// backdate the resolved alert directly; InsertAlert stamped "now" since CreatedAt was zero
	_, err = s.db.ExecContext(ctx, `UPDATE alerts SET created_at = ? WHERE id = ?`,
		time.Now().Add(-60*24*time.Hour).UTC().Format(time.RFC3339Nano), oldAlertID)
	require.NoError(t, err)

	require.NoError(t, s.Sweep(ctx, 24*time.Hour, 30*24*time.Hour))

	flights, err := s.ListRecentFlights(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "N22222", flights[0].ExternalID())

	alerts, err := s.ListRecentAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, alerts, 0)
}

func TestConcurrentInsertsDoNotCorruptCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			id := "N" + string(rune('A'+i%26))
			_, err := s.InsertFlight(ctx, sampleFlight(id))
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}

	flights, err := s.ListRecentFlights(ctx, 100, false)
	require.NoError(t, err)
	assert.Len(t, flights, n)
}
