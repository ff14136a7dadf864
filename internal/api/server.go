// Package api exposes the forecasting engine over HTTP.
//
// Routes:
//
//	GET  /                service banner
//	GET  /health          model and database status
//	POST /predict         hourly kWh and cost forecast for a home
//	POST /train           retrain on the most recent history and persist
//	GET  /model/info      metadata of the current model
//	GET  /model/versions  saved model versions, newest first
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"energy-forecast/internal/cfg"
	"energy-forecast/internal/features"
	"energy-forecast/internal/meter"
	"energy-forecast/internal/metrics"
	"energy-forecast/internal/ml"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const serviceName = "energy-forecast"

// Training runs far longer than a prediction, so the write timeout is set
// for it rather than for /predict.
const writeTimeout = 10 * time.Minute

// HistorySource provides the consumption and weather rows the engine needs.
type HistorySource interface {
	RecentReadings(ctx context.Context, homeID string, hours int) ([]meter.Reading, error)
	RecentWeather(ctx context.Context, locationID string, hours int) (features.WeatherSeries, error)
	HourlyConsumption(ctx context.Context, homeID string, start, end time.Time) (features.ConsumptionSeries, error)
	Weather(ctx context.Context, locationID string, start, end time.Time) (features.WeatherSeries, error)
	TrainingWindow(ctx context.Context, homeID string, lookback time.Duration) (time.Time, time.Time, error)
	Ping(ctx context.Context) error
}

// WeatherSource provides recent observations from an external provider.
type WeatherSource interface {
	Recent(ctx context.Context, hours int) (features.WeatherSeries, error)
}

// VersionLister lists saved model versions.
type VersionLister interface {
	Versions(ctx context.Context, limit int) ([]ml.VersionInfo, error)
}

type Server struct {
	settings cfg.Settings
	engine   ml.Forecaster
	history  HistorySource
	weather  WeatherSource
	versions VersionLister
	metrics  *metrics.Metrics

	router *mux.Router
	server *http.Server
}

// NewServer builds the router. history and m may be nil; without a history
// source /predict and /train answer 503.
func NewServer(settings cfg.Settings, engine ml.Forecaster, history HistorySource, m *metrics.Metrics) *Server {
	s := &Server{
		settings: settings,
		engine:   engine,
		history:  history,
		metrics:  m,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/train", s.handleTrain).Methods(http.MethodPost)
	r.HandleFunc("/model/info", s.handleModelInfo).Methods(http.MethodGet)
	r.HandleFunc("/model/versions", s.handleVersions).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Use(s.instrument)
	s.router = r

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", settings.HTTPPort),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// WithWeather makes /predict read weather from ws instead of the database.
func (s *Server) WithWeather(ws WeatherSource) *Server {
	s.weather = ws
	return s
}

// WithVersions enables /model/versions.
func (s *Server) WithVersions(v VersionLister) *Server {
	s.versions = v
	return s
}

// Handler returns the router wrapped in recovery and access logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.CustomLoggingHandler(io.Discard, h, accessLog)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting forecast API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
