package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredict_DefaultSampleCount(t *testing.T) {
	pts := Predict(11.45, 77.85, 450, 45, DefaultParams)
	require.Len(t, pts, 6)
	assert.Equal(t, 30, pts[0].OffsetSec)
	assert.Equal(t, 180, pts[5].OffsetSec)
}

func TestPredict_ZeroSpeedStaysPut(t *testing.T) {
	pts := Predict(10, 20, 0, 90, DefaultParams)
	for _, p := range pts {
		assert.InDelta(t, 10, p.Lat, 1e-9)
		assert.InDelta(t, 20, p.Lon, 1e-9)
	}
}

func TestPredict_NeverFailsAtPole(t *testing.T) {
	assert.NotPanics(t, func() {
		pts := Predict(90, 0, 400, 10, DefaultParams)
		require.Len(t, pts, 6)
	})
}

func TestPredict_HeadingNorthIncreasesLatOnly(t *testing.T) {
	pts := Predict(0, 0, 300, 0, DefaultParams)
	for _, p := range pts {
		assert.Greater(t, p.Lat, 0.0)
		assert.InDelta(t, 0, p.Lon, 1e-9)
	}
}
