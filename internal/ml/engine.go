package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"energy-forecast/internal/features"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics the engine reports.
type MetricsInterface interface {
	PredictionsInc()
	FailuresInc()
	EmptyHistoryInc()
	LatencyObserve(float64)
	ModelAgeSet(float64)
	TrainingRunsInc()
	TrainingFailuresInc()
	TrainingDurationObserve(float64)
	HoldoutMetricsSet(Metrics)
}

// Engine owns the current model. Predictions may run concurrently with each
// other and with training; each call reads the current predictor once, so it
// sees one consistent artifact. At most one training run is in flight.
type Engine struct {
	store   ArtifactStore
	cfg     TrainConfig
	metrics MetricsInterface

	current atomic.Pointer[Predictor]
	trainMu sync.Mutex
}

// NewEngine creates an unloaded engine. store and metrics may be nil.
func NewEngine(store ArtifactStore, cfg TrainConfig, metrics MetricsInterface) *Engine {
	return &Engine{store: store, cfg: cfg, metrics: metrics}
}

// Load installs the persisted artifact. Nothing persisted is not an error
// and leaves the engine as it was. A corrupt artifact leaves the engine
// unloaded and returns an error wrapping ErrLoad.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	a, err := e.store.Load(ctx)
	if err != nil {
		e.current.Store(nil)
		if !errors.Is(err, ErrLoad) {
			return fmt.Errorf("load artifact: %w", err)
		}
		return err
	}
	if a == nil {
		log.Info().Msg("no persisted model found, engine stays unloaded")
		return nil
	}
	if err := e.Install(a); err != nil {
		e.current.Store(nil)
		return err
	}
	return nil
}

// Install makes a the current artifact.
func (e *Engine) Install(a *Artifact) error {
	p, err := NewPredictor(a)
	if err != nil {
		return err
	}
	e.current.Store(p)
	if e.metrics != nil {
		e.metrics.ModelAgeSet(time.Since(a.TrainedAt).Seconds())
		e.metrics.HoldoutMetricsSet(a.Metrics)
	}
	log.Info().
		Str("version", a.Version).
		Str("run_id", a.RunID).
		Time("trained_at", a.TrainedAt).
		Msg("model installed")
	return nil
}

// Artifact returns the current artifact, or nil when unloaded.
func (e *Engine) Artifact() *Artifact {
	if p := e.current.Load(); p != nil {
		return p.artifact
	}
	return nil
}

// IsLoaded reports whether an artifact is installed.
func (e *Engine) IsLoaded() bool {
	return e.current.Load() != nil
}

// FeatureNames returns the ordered feature list of the current artifact, or
// the builder's list when unloaded. The slice is a copy.
func (e *Engine) FeatureNames() []string {
	if a := e.Artifact(); a != nil {
		out := make([]string, len(a.FeatureNames))
		copy(out, a.FeatureNames)
		return out
	}
	return features.Names()
}

// Train fits a new model and installs it in memory. It does not persist.
func (e *Engine) Train(ctx context.Context, c features.ConsumptionSeries, w features.WeatherSeries) (*Artifact, error) {
	if !e.trainMu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	a, err := e.fit(ctx, c, w)
	if err != nil {
		return nil, err
	}
	if err := e.Install(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Save persists the current artifact.
func (e *Engine) Save(ctx context.Context) error {
	if !e.trainMu.TryLock() {
		return ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	a := e.Artifact()
	if a == nil {
		return ErrModelNotLoaded
	}
	return e.persist(ctx, a)
}

// Retrain fits, persists and installs a new model as one exclusive
// operation. The in-memory model is only replaced once the save succeeded.
func (e *Engine) Retrain(ctx context.Context, c features.ConsumptionSeries, w features.WeatherSeries) (*Artifact, error) {
	if !e.trainMu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	a, err := e.fit(ctx, c, w)
	if err != nil {
		return nil, err
	}
	if err := e.persist(ctx, a); err != nil {
		return nil, err
	}
	if err := e.Install(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (e *Engine) fit(ctx context.Context, c features.ConsumptionSeries, w features.WeatherSeries) (*Artifact, error) {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.TrainingRunsInc()
	}
	a, err := Train(ctx, c, w, e.cfg)
	if e.metrics != nil {
		e.metrics.TrainingDurationObserve(time.Since(start).Seconds())
		if err != nil {
			e.metrics.TrainingFailuresInc()
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("training failed")
		return nil, err
	}
	return a, nil
}

func (e *Engine) persist(ctx context.Context, a *Artifact) error {
	if e.store == nil {
		return errors.New("no artifact store configured")
	}
	if err := e.store.Save(ctx, a); err != nil {
		return fmt.Errorf("save artifact %s: %w", a.Version, err)
	}
	log.Info().Str("version", a.Version).Msg("model saved")
	return nil
}

// Predict returns horizon non-negative hourly forecasts following the last
// row of history. An empty history yields horizon zeros.
func (e *Engine) Predict(c features.ConsumptionSeries, w features.WeatherSeries, horizon int) ([]float64, error) {
	f, err := e.Forecast(c, w, horizon)
	if err != nil {
		return nil, err
	}
	return f.Values, nil
}

// Forecast is Predict plus the forecast timestamps and model version.
func (e *Engine) Forecast(c features.ConsumptionSeries, w features.WeatherSeries, horizon int) (Forecast, error) {
	start := time.Now()
	p := e.current.Load()
	if p == nil {
		e.failure()
		return Forecast{}, ErrModelNotLoaded
	}

	f, err := p.Forecast(c, w, horizon)
	if err != nil {
		e.failure()
		return Forecast{}, err
	}

	if e.metrics != nil {
		e.metrics.PredictionsInc()
		e.metrics.LatencyObserve(time.Since(start).Seconds())
		e.metrics.ModelAgeSet(time.Since(p.artifact.TrainedAt).Seconds())
	}
	if f.Start.IsZero() {
		log.Warn().Int("horizon", horizon).Msg("empty history, returning zero forecast")
		if e.metrics != nil {
			e.metrics.EmptyHistoryInc()
		}
	}
	return f, nil
}

func (e *Engine) failure() {
	if e.metrics != nil {
		e.metrics.FailuresInc()
	}
}
