// Package ml trains and serves the household consumption forecaster.
// It includes the bagged regression-tree model, the trainer with its
// chronological holdout evaluation, the iterative multi-step predictor and the
// Engine that owns the current artifact.
//
// Artifacts are immutable. Training builds a new one and the Engine swaps it
// in atomically, so concurrent forecasts always see a single model.
package ml

import (
	"context"

	"energy-forecast/internal/features"
)

// Forecaster is the engine surface used by the HTTP layer.
type Forecaster interface {
	// Forecast predicts horizon hourly values following the last history row.
	Forecast(c features.ConsumptionSeries, w features.WeatherSeries, horizon int) (Forecast, error)

	// Retrain fits a new model, persists it and makes it current.
	Retrain(ctx context.Context, c features.ConsumptionSeries, w features.WeatherSeries) (*Artifact, error)

	Artifact() *Artifact
	IsLoaded() bool
	FeatureNames() []string
}

var _ Forecaster = (*Engine)(nil)
