package ml

import (
	"context"
	"math"
	"sync"
	"time"

	"energy-forecast/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	emptyHistory     int
	latencySum       float64
	modelAge         float64
	trainingRuns     int
	trainingFailures int
	trainingDuration float64
	holdout          Metrics
}

func (m *MockMetrics) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) FailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) EmptyHistoryInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyHistory++
}

func (m *MockMetrics) LatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) ModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) TrainingRunsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingRuns++
}

func (m *MockMetrics) TrainingFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingFailures++
}

func (m *MockMetrics) TrainingDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingDuration += v
}

func (m *MockMetrics) HoldoutMetricsSet(v Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdout = v
}

// memStore is an in-memory ArtifactStore.
type memStore struct {
	mu      sync.Mutex
	saved   *Artifact
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) Save(_ context.Context, a *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = a
	s.saves++
	return nil
}

func (s *memStore) Load(_ context.Context) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, s.loadErr
}

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // a Monday

// householdSeries returns n hourly rows with a daily load shape.
func householdSeries(n int) features.ConsumptionSeries {
	var c features.ConsumptionSeries
	for i := 0; i < n; i++ {
		ts := testStart.Add(time.Duration(i) * time.Hour)
		kwh := 0.8 + 0.5*math.Sin(2*math.Pi*float64(ts.Hour()-6)/24) + 0.05*float64(i%3)
		c.Append(ts, kwh, kwh*1000)
	}
	return c
}

func fastTrainConfig() TrainConfig {
	cfg := DefaultTrainConfig()
	cfg.Trees = 10
	cfg.Workers = 2
	return cfg
}

// artifactFor wraps a hand-built forest over the standard feature list.
func artifactFor(f *Forest) *Artifact {
	blob, err := f.Encode()
	if err != nil {
		panic(err)
	}
	return &Artifact{
		Version:      "vtest",
		TrainedAt:    testStart,
		RunID:        "run-test",
		ModelType:    ModelType,
		FeatureNames: features.Names(),
		ModelBlob:    blob,
	}
}

// splitTree is a one-split forest: x[feature] <= threshold ? left : right.
func splitTree(feature int, threshold, left, right float64) *Forest {
	return &Forest{
		NumFeatures: features.NumFeatures,
		Trees: []Tree{{Nodes: []Node{
			{Feature: feature, Threshold: threshold, Left: 1, Right: 2},
			{Feature: -1, Value: left},
			{Feature: -1, Value: right},
		}}},
	}
}
