package ml

import (
	"testing"
	"time"

	"energy-forecast/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPredictor_RejectsBadArtifacts(t *testing.T) {
	_, err := NewPredictor(nil)
	assert.ErrorIs(t, err, ErrLoad)

	a := artifactFor(splitTree(features.Hour, 0.5, 1, 2))
	a.FeatureNames = append(a.FeatureNames[:12:12], "wind_speed")
	_, err = NewPredictor(a)
	require.ErrorIs(t, err, ErrLoad)
	assert.Contains(t, err.Error(), "wind_speed")

	a = artifactFor(splitTree(features.Hour, 0.5, 1, 2))
	a.FeatureNames = a.FeatureNames[:5]
	_, err = NewPredictor(a)
	assert.ErrorIs(t, err, ErrLoad, "width mismatch")

	a = artifactFor(splitTree(features.Hour, 0.5, 1, 2))
	a.ModelBlob = []byte("{broken")
	_, err = NewPredictor(a)
	assert.ErrorIs(t, err, ErrLoad)
}

func TestPredictor_ProjectsByFeatureName(t *testing.T) {
	// An artifact whose feature list is reordered still reads the right
	// fields: hour and lag_1h swap places, so model column 8 is "hour".
	names := features.Names()
	names[0], names[8] = names[8], names[0]
	a := artifactFor(splitTree(8, 0.5, 10, 1))
	a.FeatureNames = names

	p, err := NewPredictor(a)
	require.NoError(t, err)

	// Last row at 22:00, so the forecast covers 23:00, 00:00, 01:00.
	c := features.ConsumptionSeries{
		Timestamps: []string{"2024-01-01T21:00:00Z", "2024-01-01T22:00:00Z"},
		TotalKWh:   []float64{5, 5},
	}
	out, err := p.Forecast(c, features.WeatherSeries{}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 10, 1}, out.Values)
}

func TestPredictor_AdvancesCalendar(t *testing.T) {
	p, err := NewPredictor(artifactFor(splitTree(features.Hour, 0.5, 10, 1)))
	require.NoError(t, err)

	c := features.ConsumptionSeries{
		Timestamps: []string{"2024-01-01T21:00:00Z", "2024-01-01T22:00:00Z"},
		TotalKWh:   []float64{5, 5},
	}
	out, err := p.Forecast(c, features.WeatherSeries{}, 3)
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, t0, out.Start)
	assert.Equal(t, []time.Time{
		t0.Add(time.Hour), t0.Add(2 * time.Hour), t0.Add(3 * time.Hour),
	}, out.Timestamps)
	assert.Equal(t, []float64{1, 10, 1}, out.Values)
	assert.Equal(t, "vtest", out.ModelVersion)
}

func TestPredictor_FeedsRawPredictionIntoLag1h(t *testing.T) {
	// lag_1h <= -0.5 predicts 7, otherwise -1. The seed's lag_1h is 0, so
	// step 1 predicts -1 (clipped to 0). Feeding back the raw -1 makes step 2
	// predict 7, which step 3 feeds back as 7 -> -1 again.
	p, err := NewPredictor(artifactFor(splitTree(features.Lag1h, -0.5, 7, -1)))
	require.NoError(t, err)

	c := features.ConsumptionSeries{
		Timestamps: []string{"2024-01-01T00:00:00Z", "2024-01-01T01:00:00Z", "2024-01-01T02:00:00Z"},
		TotalKWh:   []float64{1, 0, 2},
	}
	out, err := p.Forecast(c, features.WeatherSeries{}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 7, 0}, out.Values)
}

func TestPredictor_KeepsFarLagsAndWeather(t *testing.T) {
	// Splits on temp_c: the seed's weather never changes during the loop.
	p, err := NewPredictor(artifactFor(splitTree(features.TempC, 15, 3, 4)))
	require.NoError(t, err)

	c := features.ConsumptionSeries{
		Timestamps: []string{"2024-01-01T00:00:00Z"},
		TotalKWh:   []float64{1},
	}
	w := features.WeatherSeries{
		Timestamps: []string{"2024-01-01T00:00:00Z", "2024-01-01T05:00:00Z"},
		TempC:      []float64{10, 30},
		Humidity:   []float64{40, 40},
	}
	out, err := p.Forecast(c, w, 8)
	require.NoError(t, err)
	for _, v := range out.Values {
		assert.Equal(t, 3.0, v)
	}
}

func TestPredictor_ValidationAndEmptyHistory(t *testing.T) {
	p, err := NewPredictor(artifactFor(splitTree(features.Hour, 0.5, 1, 2)))
	require.NoError(t, err)

	_, err = p.Forecast(features.ConsumptionSeries{}, features.WeatherSeries{}, 0)
	assert.ErrorIs(t, err, ErrValidation)

	out, err := p.Forecast(features.ConsumptionSeries{}, features.WeatherSeries{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, out.Values)
	assert.True(t, out.Start.IsZero())
	assert.Empty(t, out.Timestamps)
}
