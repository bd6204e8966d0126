// Package ingest wires the Geometry Service, Classifier, Trajectory
// Predictor, Threat Analyzer, Store, Deduper, and Bus into the single
// ordered pipeline spec.md §4.7 names: validate, classify, geometry,
// predict, score, persist, dedup, (conditionally) persist alert, publish.
package ingest

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/dreadnought-systems/airwatch/internal/apierr"
	"github.com/dreadnought-systems/airwatch/internal/bus"
	"github.com/dreadnought-systems/airwatch/internal/classify"
	"github.com/dreadnought-systems/airwatch/internal/dedupe"
	"github.com/dreadnought-systems/airwatch/internal/geometry"
	"github.com/dreadnought-systems/airwatch/internal/metrics"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/dreadnought-systems/airwatch/internal/predict"
	"github.com/dreadnought-systems/airwatch/internal/store"
	"github.com/dreadnought-systems/airwatch/internal/threat"
)

// activeRegion pairs a region's id/name with its parsed, queryable
// geometry — the unit the copy-on-write cache swaps as a whole.
type activeRegion struct {
	id       int64
	name     string
	geometry *geometry.Region
}

// Pipeline is the orchestrator. It holds no telemetry state itself beyond
// the copy-on-write region cache; all durable state lives in the Store, all
// dedup state in the Deduper, all subscriber state in the Bus.
type Pipeline struct {
	store   *store.Store
	dedup   *dedupe.Deduper
	bus     *bus.Bus
	weights threat.Weights
	predict predict.Params

	regions atomic.Pointer[[]activeRegion]
}

// New constructs a Pipeline and loads the current active-region set from
// the store. Callers must call RefreshRegions after any region CRUD.
func New(st *store.Store, dd *dedupe.Deduper, b *bus.Bus, weights threat.Weights, predictParams predict.Params) (*Pipeline, error) {
	p := &Pipeline{store: st, dedup: dd, bus: b, weights: weights, predict: predictParams}
	if err := p.RefreshRegions(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// RefreshRegions reloads the active-region set from the store and swaps it
// in atomically. Telemetry in flight during the swap sees either the old
// or the new set, never a partial one.
func (p *Pipeline) RefreshRegions(ctx context.Context) error {
	rows, err := p.store.GetActiveRegions(ctx)
	if err != nil {
		return err
	}

	next := make([]activeRegion, 0, len(rows))
	for _, r := range rows {
		parsed, err := geometry.Parse(r.PolygonJSON)
		if err != nil {
			// A region that fails to parse here was accepted at write
			// time by the same Parse call, so this can only happen via
			// direct store manipulation; skip it rather than fail every
			// subsequent ingest.
			continue
		}
		next = append(next, activeRegion{id: r.ID, name: r.Name, geometry: parsed})
	}
	p.regions.Store(&next)
	return nil
}

// Result is everything the HTTP layer needs to build its response.
type Result struct {
	Flight model.Flight
	Alert  *model.Alert // non-nil only when a new alert was raised
}

// validated is the telemetry input after boundary checks, before
// enrichment.
type validated struct {
	transponderID *string
	lat, lon      float64
	altitude      float64
	speed         float64
	track         float64
	confidence    int
	signal        int
	weather       string
}

// Ingest runs the full pipeline for one telemetry sample and returns the
// persisted track plus any alert raised. ctx should already carry the
// per-request deadline; Ingest does not impose its own.
func (p *Pipeline) Ingest(ctx context.Context, in model.TelemetryInput) (Result, error) {
	start := time.Now()
	defer func() { metrics.IngestLatency.Observe(time.Since(start).Seconds()) }()

	v, err := validate(in)
	if err != nil {
		metrics.IngestErrors.WithLabelValues("InvalidTelemetry").Inc()
		return Result{}, err
	}

	hasID := v.transponderID != nil && *v.transponderID != "" && *v.transponderID != model.UnidentifiedTag

	class := classify.Classify(classify.Input{
		AltitudeFt:       v.altitude,
		SpeedKt:          v.speed,
		HasTransponderID: hasID,
	})

	inZone, matchedRegion := p.checkRegions(v.lat, v.lon)

	traj := predict.Predict(v.lat, v.lon, v.speed, v.track, p.predict)

	result := threat.Score(threat.Input{
		InRestrictedArea: inZone,
		HasTransponderID: hasID,
		Classification:   class,
		SpeedKt:          v.speed,
		AltitudeFt:       v.altitude,
	}, p.weights)

	flight := model.Flight{
		TransponderID:       v.transponderID,
		Latitude:            v.lat,
		Longitude:           v.lon,
		Altitude:            v.altitude,
		GroundSpeed:         v.speed,
		Track:               v.track,
		Timestamp:           time.Now().UTC(),
		Classification:      class,
		ThreatLevel:         result.Level,
		ThreatScore:         result.Score,
		ThreatReasons:       result.Reasons,
		RecommendedAction:   result.RecommendedAction,
		PredictedTrajectory: traj,
		DetectionConfidence: v.confidence,
		SignalStrength:      v.signal,
		WeatherCondition:    v.weather,
		InRestrictedArea:    inZone,
	}
	if matchedRegion != nil {
		id := matchedRegion.id
		flight.RegionID = &id
	}

	select {
	case <-ctx.Done():
		return Result{}, apierr.New(apierr.DeadlineExceeded, "ingest pipeline exceeded its deadline")
	default:
	}

	id, err := p.store.InsertFlight(ctx, flight)
	if err != nil {
		metrics.IngestErrors.WithLabelValues("StoreUnavailable").Inc()
		return Result{}, err
	}
	flight.ID = id

	out := Result{Flight: flight}

	externalID := flight.ExternalID()
	var regionID int64
	if matchedRegion != nil {
		regionID = matchedRegion.id
	}

	if result.Level == model.ThreatHigh || result.Level == model.ThreatCritical {
		key := dedupe.Key{ExternalID: externalID, RegionID: regionID, Severity: result.Level}
		decision := p.dedup.Evaluate(key, flight.Timestamp)

		if decision.IsNew {
			alert := model.Alert{
				FlightID:          id,
				TransponderID:     externalID,
				RegionID:          regionID,
				Severity:          string(result.Level),
				Message:           alertMessage(matchedRegion, result),
				ThreatReasons:     result.Reasons,
				RecommendedAction: result.RecommendedAction,
				CreatedAt:         flight.Timestamp,
				LastSeenAt:        flight.Timestamp,
			}
			alertID, err := p.store.InsertAlert(ctx, alert)
			if err != nil {
				metrics.IngestErrors.WithLabelValues("StoreUnavailable").Inc()
				return Result{}, err
			}
			alert.ID = alertID
			p.dedup.Open(key, alertID, flight.Timestamp)
			metrics.AlertsEmitted.WithLabelValues(string(result.Level)).Inc()

			p.bus.Publish(model.PushEvent{Type: model.EventAlert, Data: alert})
			out.Alert = &alert
		} else if decision.AlertID != 0 {
			if err := p.store.TouchAlert(ctx, decision.AlertID, flight.Timestamp); err != nil {
				metrics.IngestErrors.WithLabelValues("StoreUnavailable").Inc()
				return Result{}, err
			}
		}
	} else if matchedRegion == nil {
		// Outside every restricted region this sample: this identifier
		// carries no single region id to check against (that's the whole
		// point — it isn't in any of them), so sweep every open key it
		// holds regardless of which region or severity it opened under.
		for _, closed := range p.dedup.ObserveClearForIdentifier(externalID) {
			_ = p.store.ResolveAlert(ctx, closed.AlertID)
			metrics.AlertsResolved.WithLabelValues("auto_clear").Inc()
			p.bus.Publish(model.PushEvent{Type: model.EventAlertResolved, Data: closed.AlertID})
		}
	}

	p.bus.Publish(model.PushEvent{Type: model.EventTrackUpdate, Data: flight})

	return out, nil
}

// checkRegions iterates the current active-region snapshot and
// short-circuits on first containment, per spec.md §4.7's pipeline order.
func (p *Pipeline) checkRegions(lat, lon float64) (bool, *activeRegion) {
	regions := p.regions.Load()
	if regions == nil {
		return false, nil
	}
	for i := range *regions {
		r := &(*regions)[i]
		if r.geometry.Contains(lat, lon) {
			return true, r
		}
	}
	return false, nil
}

func alertMessage(region *activeRegion, result threat.Result) string {
	if region == nil {
		return fmt.Sprintf("threat escalated to %s", result.Level)
	}
	return fmt.Sprintf("intrusion into %q escalated to %s", region.name, result.Level)
}

// validate enforces spec.md §6's range checks, so out-of-range or NaN
// numbers never reach the classifier. A numeric field absent from the
// payload decodes as 0 and is range-checked as 0; its absence is not
// detected. Wrong JSON types are rejected earlier, when the handler decodes
// the request body.
func validate(in model.TelemetryInput) (validated, error) {
	if math.IsNaN(in.Latitude) || in.Latitude < -90 || in.Latitude > 90 {
		return validated{}, apierr.New(apierr.InvalidTelemetry, "latitude out of range")
	}
	if math.IsNaN(in.Longitude) || in.Longitude < -180 || in.Longitude > 180 {
		return validated{}, apierr.New(apierr.InvalidTelemetry, "longitude out of range")
	}
	if math.IsNaN(in.Altitude) || in.Altitude < 0 {
		return validated{}, apierr.New(apierr.InvalidTelemetry, "altitude must be non-negative")
	}
	if math.IsNaN(in.GroundSpeed) || in.GroundSpeed < 0 {
		return validated{}, apierr.New(apierr.InvalidTelemetry, "groundspeed must be non-negative")
	}
	if math.IsNaN(in.Track) || in.Track < 0 || in.Track >= 360 {
		return validated{}, apierr.New(apierr.InvalidTelemetry, "track must be in [0, 360)")
	}

	confidence := 100
	if in.DetectionConfidence != nil {
		confidence = *in.DetectionConfidence
	}
	signal := 100
	if in.SignalStrength != nil {
		signal = *in.SignalStrength
	}
	weather := "clear"
	if in.WeatherCondition != nil && *in.WeatherCondition != "" {
		weather = *in.WeatherCondition
	}

	return validated{
		transponderID: in.TransponderID,
		lat:           in.Latitude,
		lon:           in.Longitude,
		altitude:      in.Altitude,
		speed:         in.GroundSpeed,
		track:         in.Track,
		confidence:    confidence,
		signal:        signal,
		weather:       weather,
	}, nil
}
