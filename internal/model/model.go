// Package model holds the wire and domain types shared by every component
// of the pipeline. Nothing in here has behavior beyond JSON (de)serialization
// helpers; the components that produce and consume these types own the
// logic.
package model

import "time"

// ThreatLevel is the coarse category a Threat score maps onto.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "Low"
	ThreatMedium   ThreatLevel = "Medium"
	ThreatHigh     ThreatLevel = "High"
	ThreatCritical ThreatLevel = "Critical"
)

// Classification is the coarse aircraft category assigned by the Classifier.
type Classification string

const (
	ClassSmallProp       Classification = "small-prop"
	ClassAirliner        Classification = "airliner"
	ClassHighPerformance Classification = "high-performance"
	ClassFighter         Classification = "fighter"
	ClassHelicopter      Classification = "helicopter"
	ClassUnknown         Classification = "unknown"
)

// UnidentifiedTag is the sentinel transponder id used wherever spec.md calls
// for "UNKNOWN" — both as the wire value clients may send and the value
// stored when TransponderID is absent.
const UnidentifiedTag = "UNKNOWN"

// TelemetryInput is the ingest payload as decoded from the wire, before
// boundary checks (done in internal/ingest) and before any derived field is
// attached.
type TelemetryInput struct {
	TransponderID *string `json:"transponder_id"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Altitude      float64 `json:"altitude"`
	GroundSpeed   float64 `json:"groundspeed"`
	Track         float64 `json:"track"`

	// Sensor-quality metadata. Optional on the wire; the simulator or any
	// real feed may omit them, in which case defaults are applied at the
	// ingest boundary (see internal/ingest).
	DetectionConfidence *int    `json:"detection_confidence"`
	SignalStrength      *int    `json:"signal_strength"`
	WeatherCondition    *string `json:"weather_condition"`
}

// TrajectoryPoint is one sample of a predicted path.
type TrajectoryPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	OffsetSec int     `json:"t_seconds"`
}

// MarshalJSON is intentionally not overridden to a bare 3-tuple: the spec's
// wire format ("array of [lat, lon, t_seconds]") is produced by callers that
// want it via Tuple, keeping the struct field names available to Go
// callers (tests, the predictor) without an encoding/json custom marshaler.
func (p TrajectoryPoint) Tuple() [3]float64 {
	return [3]float64{p.Lat, p.Lon, float64(p.OffsetSec)}
}

// Flight is a single enriched track record. Immutable once inserted.
type Flight struct {
	ID                  int64             `json:"id"`
	TransponderID       *string           `json:"transponder_id"`
	Latitude            float64           `json:"latitude"`
	Longitude           float64           `json:"longitude"`
	Altitude            float64           `json:"altitude"`
	GroundSpeed         float64           `json:"groundspeed"`
	Track               float64           `json:"track"`
	Timestamp           time.Time         `json:"timestamp"`
	SeqNo               int64             `json:"-"`
	Classification      Classification    `json:"classification"`
	ThreatLevel         ThreatLevel       `json:"threat_level"`
	ThreatScore         int               `json:"threat_score"`
	ThreatReasons       []string          `json:"threat_reasons"`
	RecommendedAction   string            `json:"recommended_action"`
	PredictedTrajectory []TrajectoryPoint `json:"predicted_trajectory"`
	DetectionConfidence int               `json:"detection_confidence"`
	SignalStrength      int               `json:"signal_strength"`
	WeatherCondition    string            `json:"weather_condition"`
	InRestrictedArea    bool              `json:"in_restricted_area"`
	RegionID            *int64            `json:"-"` // region that triggered containment, for dedup keying only
}

// ExternalID returns the spec's "external identifier or UNKNOWN" form, used
// as half of every dedup key.
func (f Flight) ExternalID() string {
	if f.TransponderID == nil || *f.TransponderID == "" || *f.TransponderID == UnidentifiedTag {
		return UnidentifiedTag
	}
	return *f.TransponderID
}

// Region is an operator-defined restricted polygon.
type Region struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	PolygonJSON string    `json:"polygon_json"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Alert announces that a track's threat crossed into High/Critical.
type Alert struct {
	ID                 int64     `json:"id"`
	FlightID           int64     `json:"flight_id"`
	TransponderID      string    `json:"transponder_id"`
	RegionID           int64     `json:"-"`
	Severity           string    `json:"severity"`
	Message            string    `json:"message"`
	ThreatReasons       []string `json:"threat_reasons"`
	RecommendedAction  string    `json:"recommended_action"`
	Resolved           bool      `json:"resolved"`
	CreatedAt          time.Time `json:"created_at"`
	LastSeenAt         time.Time `json:"-"`
}

// OperatorRole gates admin-only operations (region CRUD).
type OperatorRole string

const (
	RoleAdmin   OperatorRole = "admin"
	RoleAnalyst OperatorRole = "analyst"
)

// Operator is a registered account.
type Operator struct {
	ID                int64        `json:"id"`
	Email             string       `json:"email"`
	Role              OperatorRole `json:"role"`
	CredentialVerifier string      `json:"-"`
	CreatedAt         time.Time    `json:"created_at"`
}

// PushEventType is the envelope discriminator for the websocket channel.
type PushEventType string

const (
	EventAlert         PushEventType = "alert"
	EventAlertResolved PushEventType = "alert_resolved"
	EventTrackUpdate   PushEventType = "track_update"
)

// PushEvent is the envelope every subscriber receives.
type PushEvent struct {
	Type PushEventType `json:"type"`
	Data any           `json:"data"`
}
