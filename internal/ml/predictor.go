package ml

import (
	"fmt"
	"math"
	"time"

	"energy-forecast/internal/features"
)

// Forecast is the result of one prediction call. Timestamps[i] is the hour
// Values[i] forecasts. Start and Timestamps are empty when the history was
// empty and the zero fallback was used.
type Forecast struct {
	Start        time.Time
	Timestamps   []time.Time
	Values       []float64
	ModelVersion string
}

// Predictor binds an artifact to its decoded forest and to the row columns
// its feature names resolve to. It is immutable and safe for concurrent use.
type Predictor struct {
	artifact *Artifact
	forest   *Forest
	columns  []int
}

// NewPredictor decodes the artifact's model blob and resolves its feature
// names. Unknown names or a width mismatch fail with ErrLoad.
func NewPredictor(a *Artifact) (*Predictor, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil artifact", ErrLoad)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	forest, err := DecodeForest(a.ModelBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if forest.NumFeatures != len(a.FeatureNames) {
		return nil, fmt.Errorf("%w: model expects %d features, artifact names %d",
			ErrLoad, forest.NumFeatures, len(a.FeatureNames))
	}

	columns := make([]int, len(a.FeatureNames))
	for i, name := range a.FeatureNames {
		idx, ok := features.Index(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown feature %q", ErrLoad, name)
		}
		columns[i] = idx
	}
	return &Predictor{artifact: a, forest: forest, columns: columns}, nil
}

// Artifact returns the bound artifact.
func (p *Predictor) Artifact() *Artifact { return p.artifact }

// Forecast predicts the next horizon hours after the last row of history.
// Only lag_1h is fed back between steps; weather, lag_24h, lag_168h and the
// rolling statistics stay at their seed values.
func (p *Predictor) Forecast(c features.ConsumptionSeries, w features.WeatherSeries, horizon int) (Forecast, error) {
	if horizon < 1 {
		return Forecast{}, fmt.Errorf("%w: horizon_hours must be at least 1, got %d", ErrValidation, horizon)
	}
	rows, err := features.Build(c, w)
	if err != nil {
		return Forecast{}, err
	}

	out := Forecast{
		Values:       make([]float64, horizon),
		ModelVersion: p.artifact.Version,
	}
	if len(rows) == 0 {
		return out, nil
	}

	seed := rows[len(rows)-1]
	t0 := seed.Timestamp
	out.Start = t0
	out.Timestamps = make([]time.Time, horizon)

	x := make([]float64, len(p.columns))
	for h := 1; h <= horizon; h++ {
		ts := t0.Add(time.Duration(h) * time.Hour)
		seed.SetTime(ts)

		raw := p.forest.Predict(p.project(&seed, x))
		out.Values[h-1] = math.Max(raw, 0)
		out.Timestamps[h-1] = ts

		seed.Set(features.Lag1h, raw)
	}
	return out, nil
}

// project fills x with the row's values in artifact feature order.
func (p *Predictor) project(r *features.Row, x []float64) []float64 {
	for i, col := range p.columns {
		x[i] = r.Get(col)
	}
	return x
}
