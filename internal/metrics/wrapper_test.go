package metrics

import (
	"context"
	"testing"
	"time"

	"energy-forecast/internal/features"
	"energy-forecast/internal/ml"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	require.NotNil(t, wrapper)
	assert.Same(t, metrics, wrapper.m)
}

func TestWrapper_Counters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	w := NewWrapper(metrics)

	w.PredictionsInc()
	w.PredictionsInc()
	w.FailuresInc()
	w.EmptyHistoryInc()
	w.TrainingRunsInc()
	w.TrainingFailuresInc()

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Predictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failures))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EmptyHistory))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TrainingRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TrainingFailures))
}

func TestWrapper_GaugesAndHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	w := NewWrapper(metrics)

	w.ModelAgeSet(3600)
	w.HoldoutMetricsSet(ml.Metrics{RMSE: 0.2, MAE: 0.1, MAPE: 15})
	w.LatencyObserve(0.02)
	w.TrainingDurationObserve(1.5)

	assert.Equal(t, 3600.0, testutil.ToFloat64(metrics.ModelAge))
	assert.Equal(t, 0.2, testutil.ToFloat64(metrics.HoldoutRMSE))
	assert.Equal(t, 0.1, testutil.ToFloat64(metrics.HoldoutMAE))
	assert.Equal(t, 15.0, testutil.ToFloat64(metrics.HoldoutMAPE))

	count, err := testutil.GatherAndCount(registry, "forecast_latency_seconds", "training_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_FailureRate(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	assert.Equal(t, 0.0, metrics.FailureRate())

	metrics.Predictions.Add(3)
	metrics.Failures.Inc()
	assert.InDelta(t, 0.25, metrics.FailureRate(), 1e-12)
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two registries must not collide on metric names.
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}

func TestWrapper_DrivenByEngine(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	cfg := ml.DefaultTrainConfig()
	cfg.Trees = 3
	engine := ml.NewEngine(nil, cfg, NewWrapper(metrics))

	var c features.ConsumptionSeries
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		c.Append(start.Add(time.Duration(i)*time.Hour), float64(i%24)/10, float64(i%24)*100)
	}

	_, err := engine.Predict(c, features.WeatherSeries{}, 2)
	assert.ErrorIs(t, err, ml.ErrModelNotLoaded)

	a, err := engine.Train(context.Background(), c, features.WeatherSeries{})
	require.NoError(t, err)
	_, err = engine.Predict(c, features.WeatherSeries{}, 2)
	require.NoError(t, err)
	_, err = engine.Predict(features.ConsumptionSeries{}, features.WeatherSeries{}, 2)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Predictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failures))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EmptyHistory))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TrainingRuns))
	assert.Equal(t, a.Metrics.RMSE, testutil.ToFloat64(metrics.HoldoutRMSE))
}
