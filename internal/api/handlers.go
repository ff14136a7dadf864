package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"energy-forecast/internal/features"
	"energy-forecast/internal/history"
	"energy-forecast/internal/meter"
	"energy-forecast/internal/ml"

	"github.com/rs/zerolog/log"
)

var errNoHistory = errors.New("history source unavailable")

type PredictRequest struct {
	HomeID       string `json:"home_id"`
	HorizonHours *int   `json:"horizon_hours"`
}

type PredictResponse struct {
	HomeID       string      `json:"home_id"`
	Timestamp    time.Time   `json:"timestamp"`
	ForecastKWh  []float64   `json:"forecast_kwh"`
	ForecastCost []float64   `json:"forecast_cost"`
	Timestamps   []time.Time `json:"forecast_timestamps"`
	ModelVersion string      `json:"model_version"`
}

type TrainRequest struct {
	HomeID string `json:"home_id"`
}

type TrainResponse struct {
	Status       string     `json:"status"`
	Metrics      ml.Metrics `json:"metrics"`
	ModelVersion string     `json:"model_version"`
	RunID        string     `json:"run_id"`
	TrainedAt    time.Time  `json:"trained_at"`
	TrainingRows int        `json:"training_rows"`
	HoldoutRows  int        `json:"holdout_rows"`
	WindowStart  time.Time  `json:"window_start"`
	WindowEnd    time.Time  `json:"window_end"`
}

type HealthResponse struct {
	Status       string  `json:"status"`
	ModelLoaded  bool    `json:"model_loaded"`
	DBConnected  bool    `json:"db_connected"`
	ModelVersion string  `json:"model_version,omitempty"`
	FailureRate  float64 `json:"failure_rate"`
}

type ModelInfoResponse struct {
	Status       string             `json:"status"`
	ModelVersion string             `json:"model_version,omitempty"`
	ModelType    string             `json:"model_type,omitempty"`
	RunID        string             `json:"run_id,omitempty"`
	Features     []string           `json:"features"`
	TrainedAt    *time.Time         `json:"trained_at,omitempty"`
	Metrics      *ml.Metrics        `json:"metrics,omitempty"`
	Importances  map[string]float64 `json:"feature_importances,omitempty"`
	TrainingRows int                `json:"training_rows,omitempty"`
	HoldoutRows  int                `json:"holdout_rows,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":      serviceName,
		"status":       "running",
		"model_loaded": s.engine.IsLoaded(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{ModelLoaded: s.engine.IsLoaded()}
	if a := s.engine.Artifact(); a != nil {
		resp.ModelVersion = a.Version
	}
	if s.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		resp.DBConnected = s.history.Ping(ctx) == nil
		cancel()
	}
	if s.metrics != nil {
		resp.FailureRate = s.metrics.FailureRate()
	}

	resp.Status = "healthy"
	if !resp.ModelLoaded || !resp.DBConnected {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.HomeID == "" {
		req.HomeID = s.settings.HomeID
	}
	horizon := s.settings.DefaultHorizon
	if req.HorizonHours != nil {
		horizon = *req.HorizonHours
	}
	if s.metrics != nil {
		s.metrics.ForecastHorizon.Observe(float64(horizon))
	}

	// Model state is checked before touching the database.
	if !s.engine.IsLoaded() {
		s.fail(w, ml.ErrModelNotLoaded)
		return
	}
	if horizon < 1 || horizon > s.settings.MaxHorizon {
		s.fail(w, fmt.Errorf("%w: horizon_hours must be between 1 and %d, got %d", ml.ErrValidation, s.settings.MaxHorizon, horizon))
		return
	}
	if s.history == nil {
		s.fail(w, errNoHistory)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	readings, err := s.history.RecentReadings(ctx, req.HomeID, s.settings.HistoryHours)
	if err != nil {
		s.fail(w, err)
		return
	}
	consumption := meter.Hourly(readings)
	weather := s.recentWeather(ctx)

	f, err := s.engine.Forecast(consumption, weather, horizon)
	if err != nil {
		s.fail(w, err)
		return
	}

	cost := make([]float64, len(f.Values))
	for i, kwh := range f.Values {
		cost[i] = kwh * s.settings.BaseRate
	}
	timestamps := f.Timestamps
	if timestamps == nil {
		timestamps = []time.Time{}
	}

	writeJSON(w, http.StatusOK, PredictResponse{
		HomeID:       req.HomeID,
		Timestamp:    time.Now().UTC(),
		ForecastKWh:  f.Values,
		ForecastCost: cost,
		Timestamps:   timestamps,
		ModelVersion: f.ModelVersion,
	})
}

// recentWeather never fails: without weather the builder uses defaults.
func (s *Server) recentWeather(ctx context.Context) features.WeatherSeries {
	var (
		w   features.WeatherSeries
		err error
	)
	if s.weather != nil {
		w, err = s.weather.Recent(ctx, s.settings.WeatherHours)
	} else {
		w, err = s.history.RecentWeather(ctx, s.settings.LocationID, s.settings.WeatherHours)
	}
	if err != nil {
		log.Warn().Err(err).Msg("weather unavailable, forecasting with default weather")
		return features.WeatherSeries{}
	}
	return w
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.HomeID == "" {
		req.HomeID = s.settings.HomeID
	}
	if s.history == nil {
		s.fail(w, errNoHistory)
		return
	}

	// Training is not bound by the request timeout.
	ctx := r.Context()
	start, end, err := s.history.TrainingWindow(ctx, req.HomeID, s.settings.TrainingLookback)
	if err != nil {
		s.fail(w, err)
		return
	}
	log.Info().
		Str("home_id", req.HomeID).
		Time("start", start).
		Time("end", end).
		Msg("starting model training")

	consumption, err := s.history.HourlyConsumption(ctx, req.HomeID, start, end)
	if err != nil {
		s.fail(w, err)
		return
	}
	weather, err := s.history.Weather(ctx, s.settings.LocationID, start, end)
	if err != nil {
		log.Warn().Err(err).Msg("training weather unavailable, using default weather")
		weather = features.WeatherSeries{}
	}

	a, err := s.engine.Retrain(ctx, consumption, weather)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TrainResponse{
		Status:       "success",
		Metrics:      a.Metrics,
		ModelVersion: a.Version,
		RunID:        a.RunID,
		TrainedAt:    a.TrainedAt,
		TrainingRows: a.TrainingRows,
		HoldoutRows:  a.HoldoutRows,
		WindowStart:  start,
		WindowEnd:    end,
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	a := s.engine.Artifact()
	if a == nil {
		writeJSON(w, http.StatusOK, ModelInfoResponse{
			Status:   "no_model_loaded",
			Features: s.engine.FeatureNames(),
		})
		return
	}
	trainedAt := a.TrainedAt
	m := a.Metrics
	writeJSON(w, http.StatusOK, ModelInfoResponse{
		Status:       "loaded",
		ModelVersion: a.Version,
		ModelType:    a.ModelType,
		RunID:        a.RunID,
		Features:     s.engine.FeatureNames(),
		TrainedAt:    &trainedAt,
		Metrics:      &m,
		Importances:  a.Importance(),
		TrainingRows: a.TrainingRows,
		HoldoutRows:  a.HoldoutRows,
	})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	if s.versions == nil {
		writeJSON(w, http.StatusOK, []ml.VersionInfo{})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	versions, err := s.versions.Versions(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if versions == nil {
		versions = []ml.VersionInfo{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) requestTimeout() time.Duration {
	if s.settings.RequestTimeout > 0 {
		return s.settings.RequestTimeout
	}
	return 30 * time.Second
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ml.ErrValidation), errors.Is(err, ml.ErrData):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, ml.ErrTrainingInProgress):
		return http.StatusConflict
	case errors.Is(err, ml.ErrModelNotLoaded), errors.Is(err, errNoHistory):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody accepts an empty body as all defaults.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
