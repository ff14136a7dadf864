package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"energy-forecast/internal/features"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// mapeEpsilon keeps MAPE finite on zero-consumption rows.
const mapeEpsilon = 1e-8

// TrainConfig controls a training run.
type TrainConfig struct {
	Trees        int     `yaml:"trees"`
	MaxDepth     int     `yaml:"maxDepth"`
	Seed         uint64  `yaml:"seed"`
	HoldoutRatio float64 `yaml:"holdoutRatio"`
	Workers      int     `yaml:"workers"`
}

// DefaultTrainConfig returns 100 trees of depth at most 10, seed 42 and a
// 20% chronological holdout.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Trees:        100,
		MaxDepth:     10,
		Seed:         42,
		HoldoutRatio: 0.2,
	}
}

// Train builds features, fits a forest on the chronologically earlier part
// of the rows and scores it on the later part. The returned artifact is not
// persisted.
func Train(ctx context.Context, c features.ConsumptionSeries, w features.WeatherSeries, cfg TrainConfig) (*Artifact, error) {
	if cfg.HoldoutRatio <= 0 || cfg.HoldoutRatio >= 1 {
		return nil, fmt.Errorf("%w: holdout ratio must be in (0,1), got %v", ErrValidation, cfg.HoldoutRatio)
	}

	rows, err := features.Build(c, w)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: feature matrix is empty", ErrData)
	}

	target, err := targetColumn(c)
	if err != nil {
		return nil, err
	}

	n := len(rows)
	split, err := chronologicalSplit(n, cfg.HoldoutRatio)
	if err != nil {
		return nil, err
	}

	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range rows {
		X[i] = rows[i].Vector(make([]float64, 0, features.NumFeatures))
		y[i] = target(&rows[i])
	}

	log.Info().
		Int("rows", n).
		Int("training_rows", split).
		Int("holdout_rows", n-split).
		Time("train_end", rows[split-1].Timestamp).
		Time("holdout_start", rows[split].Timestamp).
		Msg("starting model training")

	forest, err := FitForest(ctx, X[:split], y[:split], ForestConfig{
		Trees:    cfg.Trees,
		MaxDepth: cfg.MaxDepth,
		Seed:     cfg.Seed,
		Workers:  cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	predicted := make([]float64, n-split)
	for i := split; i < n; i++ {
		predicted[i-split] = forest.Predict(X[i])
	}
	metrics := Evaluate(y[split:], predicted)

	blob, err := forest.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode forest: %w", err)
	}

	trainedAt := time.Now().UTC()
	art := &Artifact{
		Version:      "v" + trainedAt.Format("20060102-150405"),
		TrainedAt:    trainedAt,
		RunID:        uuid.New().String(),
		ModelType:    ModelType,
		Metrics:      metrics,
		FeatureNames: features.Names(),
		Importances:  forest.Importances,
		TrainingRows: split,
		HoldoutRows:  n - split,
		ModelBlob:    blob,
	}

	log.Info().
		Str("version", art.Version).
		Float64("rmse", metrics.RMSE).
		Float64("mae", metrics.MAE).
		Float64("mape", metrics.MAPE).
		Msg("model trained")

	return art, nil
}

// chronologicalSplit returns the index of the first holdout row. Rows are
// already in time order, so everything from the split on is strictly later
// than the training rows.
func chronologicalSplit(n int, holdoutRatio float64) (int, error) {
	split := int(float64(n) * (1 - holdoutRatio))
	if split < 1 || split >= n {
		return 0, fmt.Errorf("%w: %d feature rows cannot be split into training and holdout sets", ErrData, n)
	}
	return split, nil
}

// targetColumn picks total_kwh when present and falls back to average power
// converted from watts to kilowatts.
func targetColumn(c features.ConsumptionSeries) (func(*features.Row) float64, error) {
	switch {
	case c.HasTotalKWh():
		return func(r *features.Row) float64 { return r.Get(features.TotalKWh) }, nil
	case c.HasAvgPowerW():
		return func(r *features.Row) float64 { return r.Get(features.AvgPowerW) / 1000 }, nil
	default:
		return nil, fmt.Errorf("%w: no target column, need %q or %q", ErrData, features.ColumnTotalKWh, features.ColumnAvgPowerW)
	}
}

// Evaluate computes RMSE, MAE and MAPE (in percent) of predicted against
// actual. Both slices must have the same length.
func Evaluate(actual, predicted []float64) Metrics {
	if len(actual) == 0 {
		return Metrics{}
	}
	var se, ae, ape float64
	for i, a := range actual {
		d := a - predicted[i]
		se += d * d
		ae += math.Abs(d)
		ape += math.Abs(d / (a + mapeEpsilon))
	}
	n := float64(len(actual))
	return Metrics{
		RMSE: math.Sqrt(se / n),
		MAE:  ae / n,
		MAPE: ape / n * 100,
	}
}
