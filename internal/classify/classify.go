// Package classify assigns a coarse aircraft category to a telemetry
// record based on kinematics alone — the same "cheap heuristic over
// speed/altitude bands" idiom the retrieval pack's aviation tooling uses
// (mmp-vice's pkg/aviation) before anything fancier is warranted.
package classify

import "github.com/dreadnought-systems/airwatch/internal/model"

// Input is the subset of a validated telemetry record the classifier needs.
// Invalid numeric fields (negative, NaN) never reach this function — they
// are rejected at the ingest boundary, per spec.md §4.2.
type Input struct {
	AltitudeFt        float64
	SpeedKt           float64
	HasTransponderID  bool
}

// Classify evaluates the decision table top to bottom; the first matching
// rule wins. Boundary speeds are inclusive of the lower bound.
func Classify(in Input) model.Classification {
	switch {
	case in.SpeedKt < 120:
		if !in.HasTransponderID && in.AltitudeFt < 500 {
			// Very low altitude, unidentified, and slow: too ambiguous to
			// call a small prop with confidence.
			return model.ClassUnknown
		}
		return model.ClassSmallProp
	case in.SpeedKt < 350:
		return model.ClassAirliner
	case in.SpeedKt < 600:
		return model.ClassHighPerformance
	default:
		return model.ClassFighter
	}
}
