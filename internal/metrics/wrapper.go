package metrics

import "energy-forecast/internal/ml"

// Wrapper adapts Metrics to the interface the forecasting engine reports to.
type Wrapper struct {
	m *Metrics
}

var _ ml.MetricsInterface = (*Wrapper)(nil)

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionsInc() {
	w.m.Predictions.Inc()
}

func (w *Wrapper) FailuresInc() {
	w.m.Failures.Inc()
}

func (w *Wrapper) EmptyHistoryInc() {
	w.m.EmptyHistory.Inc()
}

func (w *Wrapper) LatencyObserve(v float64) {
	w.m.Latency.Observe(v)
}

func (w *Wrapper) ModelAgeSet(v float64) {
	w.m.ModelAge.Set(v)
}

func (w *Wrapper) TrainingRunsInc() {
	w.m.TrainingRuns.Inc()
}

func (w *Wrapper) TrainingFailuresInc() {
	w.m.TrainingFailures.Inc()
}

func (w *Wrapper) TrainingDurationObserve(v float64) {
	w.m.TrainingDuration.Observe(v)
}

// HoldoutMetricsSet publishes the current model's validation scores.
func (w *Wrapper) HoldoutMetricsSet(v ml.Metrics) {
	w.m.HoldoutRMSE.Set(v.RMSE)
	w.m.HoldoutMAE.Set(v.MAE)
	w.m.HoldoutMAPE.Set(v.MAPE)
}
