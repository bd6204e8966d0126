// Package store is the durable record of tracks, alerts, restricted
// regions, and operator accounts. It owns all persistent state (spec.md
// §3's "Ownership" rule) and serializes writes to a single-writer sqlite
// database, the same pure-Go, cgo-free driver pairing (modernc.org/sqlite
// + golang-migrate/migrate's embedded-source schema management) used by
// banshee-data's velocity.report.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/dreadnought-systems/airwatch/internal/apierr"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/dreadnought-systems/airwatch/internal/store/migrations"
)

// Store wraps a *sql.DB pool configured for sqlite's single-writer
// discipline: WAL mode lets reads proceed concurrently, while sqlite's own
// write lock serializes INSERT/UPDATE across the pool's connections.
type Store struct {
	db *sql.DB

	seqMu sync.Mutex
	seq   int64
}

// Open connects to (creating if absent) the sqlite database at path,
// applies embedded migrations, and returns a ready Store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL allows concurrent readers; writes still serialize at the engine
	// level, and busy_timeout makes a writer on any of the pool's
	// connections wait up to 5s for the write lock instead of failing with
	// SQLITE_BUSY.
	db.SetMaxOpenConns(8)

	if err := migrate_(path, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// migrate_ applies every embedded migration that hasn't run yet.
func migrate_(path string, db *sql.DB) error {
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", srcDriver, fmt.Sprintf("sqlite://%s", path))
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// nextSeq hands out a monotonically increasing sequence number, used to
// order flights for the same external identifier on read even when two
// inserts land in the same timestamp tick.
func (s *Store) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return s.seq
}

// InsertFlight persists a fully enriched track record and returns its
// assigned id. Total order with other writers is provided by sqlite's
// single-writer serialization; never fails except on store exhaustion
// (disk full, too many open connections), surfaced as StoreUnavailable.
func (s *Store) InsertFlight(ctx context.Context, f model.Flight) (int64, error) {
	reasonsJSON, err := json.Marshal(f.ThreatReasons)
	if err != nil {
		return 0, err
	}
	trajJSON, err := json.Marshal(tuples(f.PredictedTrajectory))
	if err != nil {
		return 0, err
	}

	seq := s.nextSeq()

	var transponderID sql.NullString
	if f.TransponderID != nil {
		transponderID = sql.NullString{String: *f.TransponderID, Valid: true}
	}

	var regionID sql.NullInt64
	if f.RegionID != nil {
		regionID = sql.NullInt64{Int64: *f.RegionID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flights (
			seq_no, transponder_id, latitude, longitude, altitude, groundspeed, track,
			timestamp, classification, threat_level, threat_score, threat_reasons,
			recommended_action, predicted_trajectory, detection_confidence,
			signal_strength, weather_condition, in_restricted_area, region_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, transponderID, f.Latitude, f.Longitude, f.Altitude, f.GroundSpeed, f.Track,
		f.Timestamp.UTC().Format(time.RFC3339Nano), f.Classification, f.ThreatLevel, f.ThreatScore,
		string(reasonsJSON), f.RecommendedAction, string(trajJSON), f.DetectionConfidence,
		f.SignalStrength, f.WeatherCondition, boolToInt(f.InRestrictedArea), regionID,
	)
	if err != nil {
		return 0, apierr.New(apierr.StoreUnavailable, "insert flight: "+err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apierr.New(apierr.StoreUnavailable, "read inserted id: "+err.Error())
	}
	return id, nil
}

// ListRecentFlights returns up to limit flights ordered by timestamp
// descending. When snapshotOnly is set, only the most recent record per
// external identifier is returned — the "latest per track" dashboard view.
func (s *Store) ListRecentFlights(ctx context.Context, limit int, snapshotOnly bool) ([]model.Flight, error) {
	query := `
		SELECT id, transponder_id, latitude, longitude, altitude, groundspeed, track,
			timestamp, classification, threat_level, threat_score, threat_reasons,
			recommended_action, predicted_trajectory, detection_confidence,
			signal_strength, weather_condition, in_restricted_area, region_id
		FROM flights`
	if snapshotOnly {
		query += `
		WHERE id IN (
			SELECT id FROM (
				SELECT id, transponder_id,
					ROW_NUMBER() OVER (PARTITION BY COALESCE(transponder_id, '') ORDER BY timestamp DESC, seq_no DESC) AS rn
				FROM flights
			) ranked WHERE rn = 1
		)`
	}
	query += " ORDER BY timestamp DESC, seq_no DESC LIMIT ?"

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apierr.New(apierr.StoreUnavailable, "list flights: "+err.Error())
	}
	defer rows.Close()

	var out []model.Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, apierr.New(apierr.StoreUnavailable, "scan flight: "+err.Error())
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFlight(rows *sql.Rows) (model.Flight, error) {
	var f model.Flight
	var transponderID sql.NullString
	var regionID sql.NullInt64
	var tsStr, reasonsJSON, trajJSON string

	err := rows.Scan(
		&f.ID, &transponderID, &f.Latitude, &f.Longitude, &f.Altitude, &f.GroundSpeed, &f.Track,
		&tsStr, &f.Classification, &f.ThreatLevel, &f.ThreatScore, &reasonsJSON,
		&f.RecommendedAction, &trajJSON, &f.DetectionConfidence,
		&f.SignalStrength, &f.WeatherCondition, &boolHolder{&f.InRestrictedArea}, &regionID,
	)
	if err != nil {
		return f, err
	}

	if transponderID.Valid {
		f.TransponderID = &transponderID.String
	}
	if regionID.Valid {
		f.RegionID = &regionID.Int64
	}
	if f.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr); err != nil {
		return f, err
	}
	if err := json.Unmarshal([]byte(reasonsJSON), &f.ThreatReasons); err != nil {
		return f, err
	}
	var tuples [][3]float64
	if err := json.Unmarshal([]byte(trajJSON), &tuples); err != nil {
		return f, err
	}
	for _, t := range tuples {
		f.PredictedTrajectory = append(f.PredictedTrajectory, model.TrajectoryPoint{
			Lat: t[0], Lon: t[1], OffsetSec: int(t[2]),
		})
	}
	return f, nil
}

// UpsertRegion creates a new, active restricted region. It always inserts
// a new row: an existing region with the same name is not replaced, and
// there is no update-in-place (delete then re-create instead).
func (s *Store) UpsertRegion(ctx context.Context, name, polygonJSON string) (model.Region, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO restricted_regions (name, polygon_json, active, created_at) VALUES (?, ?, 1, ?)`,
		name, polygonJSON, now.Format(time.RFC3339Nano))
	if err != nil {
		return model.Region{}, apierr.New(apierr.StoreUnavailable, "insert region: "+err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Region{}, apierr.New(apierr.StoreUnavailable, "read inserted region id: "+err.Error())
	}
	return model.Region{ID: id, Name: name, PolygonJSON: polygonJSON, Active: true, CreatedAt: now}, nil
}

// GetActiveRegions returns every region with active = true. Cheap; callers
// may cache between telemetry events and must invalidate on region CRUD
// (see internal/ingest's copy-on-write region cache).
func (s *Store) GetActiveRegions(ctx context.Context) ([]model.Region, error) {
	return s.listRegions(ctx, true)
}

// ListRegions returns every region regardless of active flag.
func (s *Store) ListRegions(ctx context.Context) ([]model.Region, error) {
	return s.listRegions(ctx, false)
}

func (s *Store) listRegions(ctx context.Context, activeOnly bool) ([]model.Region, error) {
	query := `SELECT id, name, polygon_json, active, created_at FROM restricted_regions`
	args := []any{}
	if activeOnly {
		query += ` WHERE active = 1`
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierr.New(apierr.StoreUnavailable, "list regions: "+err.Error())
	}
	defer rows.Close()

	var out []model.Region
	for rows.Next() {
		var r model.Region
		var active int
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.PolygonJSON, &active, &createdAt); err != nil {
			return nil, apierr.New(apierr.StoreUnavailable, "scan region: "+err.Error())
		}
		r.Active = active != 0
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ToggleRegion flips a region's active flag.
func (s *Store) ToggleRegion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE restricted_regions SET active = 1 - active WHERE id = ?`, id)
	return checkAffected(res, err, "region")
}

// DeleteRegion removes a region permanently.
func (s *Store) DeleteRegion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM restricted_regions WHERE id = ?`, id)
	return checkAffected(res, err, "region")
}

func checkAffected(res sql.Result, err error, what string) error {
	if err != nil {
		return apierr.New(apierr.StoreUnavailable, "update "+what+": "+err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.New(apierr.StoreUnavailable, "read affected rows: "+err.Error())
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, what+" not found")
	}
	return nil
}

// InsertAlert persists a newly created alert and returns its assigned id.
func (s *Store) InsertAlert(ctx context.Context, a model.Alert) (int64, error) {
	reasonsJSON, err := json.Marshal(a.ThreatReasons)
	if err != nil {
		return 0, err
	}
	now := a.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	lastSeen := a.LastSeenAt
	if lastSeen.IsZero() {
		lastSeen = now
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (flight_id, transponder_id, region_id, severity, message,
			threat_reasons, recommended_action, resolved, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FlightID, a.TransponderID, a.RegionID, a.Severity, a.Message,
		string(reasonsJSON), a.RecommendedAction, boolToInt(a.Resolved),
		now.Format(time.RFC3339Nano), lastSeen.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, apierr.New(apierr.StoreUnavailable, "insert alert: "+err.Error())
	}
	return res.LastInsertId()
}

// TouchAlert updates an open alert's last-seen timestamp without creating a
// duplicate, per spec.md §4.6 step 3.
func (s *Store) TouchAlert(ctx context.Context, alertID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET last_seen_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), alertID)
	return checkAffected(res, err, "alert")
}

// AlertFilter narrows ListRecentAlerts. UnresolvedOnly false means every
// alert; a Limit of zero or less falls back to 100.
type AlertFilter struct {
	Limit          int
	UnresolvedOnly bool
}

// ListRecentAlerts returns alerts ordered by creation time descending.
func (s *Store) ListRecentAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, flight_id, transponder_id, region_id, severity, message,
		threat_reasons, recommended_action, resolved, created_at, last_seen_at FROM alerts`
	if filter.UnresolvedOnly {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apierr.New(apierr.StoreUnavailable, "list alerts: "+err.Error())
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, apierr.New(apierr.StoreUnavailable, "scan alert: "+err.Error())
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListUnresolvedAlerts feeds the Deduper's cold-start reseed (spec.md
// §4.6's "or in the store on cold start").
func (s *Store) ListUnresolvedAlerts(ctx context.Context) ([]model.Alert, error) {
	return s.ListRecentAlerts(ctx, AlertFilter{UnresolvedOnly: true, Limit: 10000})
}

func scanAlert(rows *sql.Rows) (model.Alert, error) {
	var a model.Alert
	var resolved int
	var reasonsJSON, createdAt, lastSeen string
	err := rows.Scan(&a.ID, &a.FlightID, &a.TransponderID, &a.RegionID, &a.Severity, &a.Message,
		&reasonsJSON, &a.RecommendedAction, &resolved, &createdAt, &lastSeen)
	if err != nil {
		return a, err
	}
	a.Resolved = resolved != 0
	if err := json.Unmarshal([]byte(reasonsJSON), &a.ThreatReasons); err != nil {
		return a, err
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return a, err
	}
	if a.LastSeenAt, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
		return a, err
	}
	return a, nil
}

// ResolveAlert marks an alert resolved. A second call against an
// already-resolved id is not an error (sqlite counts it as an affected
// row regardless of whether resolved was already 1); an unknown id
// returns NotFound.
func (s *Store) ResolveAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET resolved = 1 WHERE id = ?`, id)
	return checkAffected(res, err, "alert")
}

// CreateOperator registers a new account. Returns Conflict if the email is
// already taken.
func (s *Store) CreateOperator(ctx context.Context, email, credentialVerifier string, role model.OperatorRole) (model.Operator, error) {
	var existing int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators WHERE email = ?`, email).Scan(&existing)
	if err != nil {
		return model.Operator{}, apierr.New(apierr.StoreUnavailable, "check existing operator: "+err.Error())
	}
	if existing > 0 {
		return model.Operator{}, apierr.New(apierr.Conflict, "email already registered")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (email, role, credential_verifier, created_at) VALUES (?, ?, ?, ?)`,
		email, role, credentialVerifier, now.Format(time.RFC3339Nano))
	if err != nil {
		return model.Operator{}, apierr.New(apierr.StoreUnavailable, "insert operator: "+err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Operator{}, apierr.New(apierr.StoreUnavailable, "read inserted operator id: "+err.Error())
	}
	return model.Operator{ID: id, Email: email, Role: role, CredentialVerifier: credentialVerifier, CreatedAt: now}, nil
}

// GetOperatorByEmail looks up an operator for authentication.
func (s *Store) GetOperatorByEmail(ctx context.Context, email string) (model.Operator, error) {
	var op model.Operator
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, role, credential_verifier, created_at FROM operators WHERE email = ?`, email,
	).Scan(&op.ID, &op.Email, &op.Role, &op.CredentialVerifier, &createdAt)
	if err == sql.ErrNoRows {
		return model.Operator{}, apierr.New(apierr.Unauthenticated, "no such operator")
	}
	if err != nil {
		return model.Operator{}, apierr.New(apierr.StoreUnavailable, "lookup operator: "+err.Error())
	}
	op.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	return op, err
}

// CountOperators is used by the bootstrap CLI to decide whether a
// seed-admin operation is needed.
func (s *Store) CountOperators(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n)
	return n, err
}

// Sweep removes flights older than flightWindow and resolved alerts older
// than alertWindow (unresolved alerts are kept indefinitely per spec.md
// §4.5). Runs as a single pair of statements; short enough not to starve
// writers sharing the same connection pool.
func (s *Store) Sweep(ctx context.Context, flightWindow, alertWindow time.Duration) error {
	flightCutoff := time.Now().Add(-flightWindow).UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM flights WHERE timestamp < ?`, flightCutoff); err != nil {
		return fmt.Errorf("sweep flights: %w", err)
	}

	alertCutoff := time.Now().Add(-alertWindow).UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE resolved = 1 AND created_at < ?`, alertCutoff); err != nil {
		return fmt.Errorf("sweep alerts: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// boolHolder adapts an int-backed sqlite column into a *bool destination
// for Scan.
type boolHolder struct {
	dest *bool
}

func (b *boolHolder) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*b.dest = v != 0
	case bool:
		*b.dest = v
	default:
		return fmt.Errorf("unsupported scan type %T for bool column", src)
	}
	return nil
}

func tuples(points []model.TrajectoryPoint) [][3]float64 {
	out := make([][3]float64, len(points))
	for i, p := range points {
		out[i] = p.Tuple()
	}
	return out
}
