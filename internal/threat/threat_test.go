package threat

import (
	"testing"

	"github.com/dreadnought-systems/airwatch/internal/classify"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/stretchr/testify/assert"
)

func classifyAndScore(in Input) Result {
	return Score(in, DefaultWeights)
}

// Scenario 1: benign cruise, not in any zone.
func TestScenario1_BenignCruise(t *testing.T) {
	class := classify.Classify(classify.Input{SpeedKt: 450, AltitudeFt: 35000, HasTransponderID: true})
	res := classifyAndScore(Input{
		InRestrictedArea: false,
		HasTransponderID: true,
		Classification:   class,
		SpeedKt:          450,
		AltitudeFt:       35000,
	})
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, model.ThreatLow, res.Level)
	assert.Empty(t, res.Reasons)
}

// Scenario 2: zone intrusion by small aircraft, low altitude.
func TestScenario2_ZoneIntrusionSmallAircraft(t *testing.T) {
	class := classify.Classify(classify.Input{SpeedKt: 60, AltitudeFt: 3529, HasTransponderID: true})
	res := classifyAndScore(Input{
		InRestrictedArea: true,
		HasTransponderID: true,
		Classification:   class,
		SpeedKt:          60,
		AltitudeFt:       3529,
	})
	assert.Equal(t, 50, res.Score)
	assert.Equal(t, model.ThreatHigh, res.Level)
	assert.Contains(t, res.Reasons, "Inside restricted zone")
	assert.Contains(t, res.Reasons, "Low altitude in zone")
}

// Scenario 3: unidentified fast aircraft outside zone.
func TestScenario3_UnidentifiedFastOutsideZone(t *testing.T) {
	class := classify.Classify(classify.Input{SpeedKt: 780, AltitudeFt: 25000, HasTransponderID: false})
	assert.Equal(t, model.ClassFighter, class)
	res := classifyAndScore(Input{
		InRestrictedArea: false,
		HasTransponderID: false,
		Classification:   class,
		SpeedKt:          780,
		AltitudeFt:       25000,
	})
	assert.Equal(t, 50, res.Score)
	assert.Equal(t, model.ThreatHigh, res.Level)
	assert.Contains(t, res.Reasons, "No transponder signal")
	assert.Contains(t, res.Reasons, "High speed (780 kt)")
	assert.Contains(t, res.Reasons, "Military aircraft type")
}

// Scenario 4: unidentified fast aircraft intruding at low altitude.
func TestScenario4_UnidentifiedFastIntrudingLowAltitude(t *testing.T) {
	class := classify.Classify(classify.Input{SpeedKt: 780, AltitudeFt: 800, HasTransponderID: false})
	res := classifyAndScore(Input{
		InRestrictedArea: true,
		HasTransponderID: false,
		Classification:   class,
		SpeedKt:          780,
		AltitudeFt:       800,
	})
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, model.ThreatCritical, res.Level)
}

func TestScore_Deterministic(t *testing.T) {
	in := Input{InRestrictedArea: true, HasTransponderID: false, Classification: model.ClassFighter, SpeedKt: 700, AltitudeFt: 1000}
	r1 := Score(in, DefaultWeights)
	r2 := Score(in, DefaultWeights)
	assert.Equal(t, r1, r2)
}

func TestScore_Bounds(t *testing.T) {
	in := Input{InRestrictedArea: true, HasTransponderID: false, Classification: model.ClassFighter, SpeedKt: 900, AltitudeFt: 10}
	r := Score(in, DefaultWeights)
	assert.GreaterOrEqual(t, r.Score, 0)
	assert.LessOrEqual(t, r.Score, 100)
}

func TestScore_ReasonsSumToUnclampedScore(t *testing.T) {
	cases := []Input{
		{InRestrictedArea: true, HasTransponderID: false, Classification: model.ClassFighter, SpeedKt: 900, AltitudeFt: 10},
		{InRestrictedArea: false, HasTransponderID: true, Classification: model.ClassAirliner, SpeedKt: 200, AltitudeFt: 30000},
		{InRestrictedArea: true, HasTransponderID: true, Classification: model.ClassSmallProp, SpeedKt: 80, AltitudeFt: 1000},
	}
	points := map[string]int{
		"Inside restricted zone":  pointsZoneIntrusion,
		"No transponder signal":   pointsNoIdentity,
		"Military aircraft type":  pointsMilitaryClass,
		"Low altitude in zone":    pointsLowAltIntrusion,
	}
	for _, in := range cases {
		res := Score(in, DefaultWeights)
		sum := 0
		for _, reason := range res.Reasons {
			if pts, ok := points[reason]; ok {
				sum += pts
				continue
			}
			sum += pointsHighSpeed // "High speed (%.0f kt)" reasons
		}
		if sum > 100 {
			sum = 100
		}
		assert.Equal(t, sum, res.Score)
	}
}

func TestGraduatedSpeed_RampsLinearly(t *testing.T) {
	w := Weights{SpeedThresholdKnots: 400, GraduatedSpeed: true}
	low := Score(Input{SpeedKt: 400, HasTransponderID: true}, w)
	mid := Score(Input{SpeedKt: 550, HasTransponderID: true}, w)
	high := Score(Input{SpeedKt: 700, HasTransponderID: true}, w)
	assert.Equal(t, 0, low.Score)
	assert.Equal(t, 7, mid.Score)
	assert.Equal(t, 15, high.Score)
}
