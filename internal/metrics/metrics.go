// Package metrics provides Prometheus metrics collection for the forecasting
// service. It defines the prediction, training and HTTP metrics exposed on
// the metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the forecasting service.
type Metrics struct {
	// Prediction metrics
	Predictions     prometheus.Counter   // Successful forecasts
	Failures        prometheus.Counter   // Failed forecasts
	EmptyHistory    prometheus.Counter   // Forecasts answered with the zero fallback
	Latency         prometheus.Histogram // Forecast latency in seconds
	ModelAge        prometheus.Gauge     // Age of the current model in seconds
	ForecastHorizon prometheus.Histogram // Requested horizons in hours

	// Training metrics
	TrainingRuns     prometheus.Counter
	TrainingFailures prometheus.Counter
	TrainingDuration prometheus.Histogram
	HoldoutRMSE      prometheus.Gauge
	HoldoutMAE       prometheus.Gauge
	HoldoutMAPE      prometheus.Gauge

	// Collaborator metrics
	HTTPRequests  *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration  *prometheus.HistogramVec // Request duration by route
	SourceErrors  *prometheus.CounterVec   // Row source errors by source
	RowsRetrieved *prometheus.CounterVec   // Rows read by source
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecast_predictions_total",
			Help: "Total number of forecasts served",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecast_failures_total",
			Help: "Total number of failed forecasts",
		}),
		EmptyHistory: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecast_empty_history_total",
			Help: "Total number of forecasts answered with zeros because the history was empty",
		}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecast_latency_seconds",
			Help:    "Forecast latency in seconds (feature build plus inference)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_model_age_seconds",
			Help: "Age of the current model in seconds",
		}),
		ForecastHorizon: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecast_horizon_hours",
			Help:    "Requested forecast horizons in hours",
			Buckets: []float64{1, 3, 6, 12, 24, 48, 96, 168},
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of training runs started",
		}),
		TrainingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_failures_total",
			Help: "Total number of failed training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		HoldoutRMSE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_holdout_rmse",
			Help: "Holdout RMSE of the current model in kWh",
		}),
		HoldoutMAE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_holdout_mae",
			Help: "Holdout MAE of the current model in kWh",
		}),
		HoldoutMAPE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_holdout_mape",
			Help: "Holdout MAPE of the current model in percent",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		SourceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "row_source_errors_total",
			Help: "Total number of errors reading rows, by source",
		}, []string{"source"}),
		RowsRetrieved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "row_source_rows_total",
			Help: "Total number of rows read, by source",
		}, []string{"source"}),
	}
}

// FailureRate returns failed forecasts as a share of all forecast attempts,
// or 0 when none have been made.
func (m *Metrics) FailureRate() float64 {
	ok := counterValue(m.Predictions)
	failed := counterValue(m.Failures)
	if ok+failed == 0 {
		return 0
	}
	return failed / (ok + failed)
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
