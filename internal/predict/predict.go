// Package predict extrapolates a short-horizon future path from current
// kinematics. The model is an explicit, deliberate simplification — a
// constant-velocity equirectangular approximation, not a great-circle or
// kinematic-state-estimator model — per spec.md §4.3 and §9's note that
// "anything richer is out of scope."
package predict

import (
	"math"

	"github.com/dreadnought-systems/airwatch/internal/model"
)

// knotsToDegPerSec converts ground speed in knots to an equator-local
// degrees-per-second scale, per spec.md's fixed conversion constant.
const knotsToDegPerSec = 1.0 / 216000.0

// poleEpsilon is the minimum value cos(lat0) is clamped to, so a track
// directly over a pole never divides by zero.
const poleEpsilon = 1e-6

// Params configures the horizon and stride; both are operator-tunable via
// internal/config but default to spec.md's 180s / 30s (6 samples).
type Params struct {
	HorizonSec int
	StrideSec  int
}

// DefaultParams matches spec.md §4.3's defaults.
var DefaultParams = Params{HorizonSec: 180, StrideSec: 30}

// Predict returns an ordered sequence of (lat, lon, t) samples. It never
// fails: singular inputs are clamped, not rejected.
func Predict(lat0, lon0, speedKt, headingDeg float64, p Params) []model.TrajectoryPoint {
	if p.StrideSec <= 0 {
		p = DefaultParams
	}

	headingRad := headingDeg * math.Pi / 180.0
	v := speedKt * knotsToDegPerSec

	cosLat0 := math.Cos(lat0 * math.Pi / 180.0)
	if math.Abs(cosLat0) < poleEpsilon {
		if cosLat0 < 0 {
			cosLat0 = -poleEpsilon
		} else {
			cosLat0 = poleEpsilon
		}
	}

	n := p.HorizonSec / p.StrideSec
	points := make([]model.TrajectoryPoint, 0, n)
	for t := p.StrideSec; t <= p.HorizonSec; t += p.StrideSec {
		dt := float64(t)
		dlat := math.Cos(headingRad) * v * dt
		dlon := math.Sin(headingRad) * v * dt / cosLat0

		points = append(points, model.TrajectoryPoint{
			Lat:       lat0 + dlat,
			Lon:       lon0 + dlon,
			OffsetSec: t,
		})
	}
	return points
}
