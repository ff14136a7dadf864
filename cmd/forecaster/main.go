package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"energy-forecast/internal/api"
	"energy-forecast/internal/cfg"
	"energy-forecast/internal/common"
	"energy-forecast/internal/history"
	"energy-forecast/internal/metrics"
	"energy-forecast/internal/ml"
	"energy-forecast/internal/storage"
	"energy-forecast/internal/weather"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	envFile := flag.String("env", "", "Path to .env file (default .env)")
	flag.Parse()

	if err := cfg.LoadEnvFile(*envFile); err != nil {
		log.Warn().Err(err).Msg(".env file could not be loaded")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("storage initialization failed")
	}
	defer store.Close()

	engine := ml.NewEngine(store, c.TrainConfig(), mw)
	loadModel(ctx, engine)

	repo := initializeHistory(ctx, c, m)
	if repo != nil {
		defer repo.Close()
	}

	var source api.HistorySource
	if repo != nil {
		source = repo
	}
	server := api.NewServer(c, engine, source, m).WithVersions(store)
	if c.WeatherSource == common.WeatherSourceOpenMeteo {
		client := weather.NewClient(c.WeatherURL, c.Latitude, c.Longitude, c.RequestTimeout).WithMetrics(m)
		server.WithWeather(client)
		log.Info().Str("url", c.WeatherURL).Msg("using Open-Meteo for recent weather")
	}

	var wg sync.WaitGroup
	startMetricsServer(ctx, &wg, c)
	startAPIServer(ctx, &wg, server, cancel)

	waitForShutdown(ctx, cancel, &wg)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// loadModel installs the persisted model. A missing or unreadable model
// leaves the service running without one until POST /train succeeds.
func loadModel(ctx context.Context, engine *ml.Engine) {
	err := engine.Load(ctx)
	switch {
	case err == nil && engine.IsLoaded():
		log.Info().Str("version", engine.Artifact().Version).Msg("model loaded")
	case err == nil:
		log.Warn().Msg("no trained model found, use POST /train to train one")
	case errors.Is(err, ml.ErrLoad):
		log.Warn().Err(err).Msg("persisted model is unusable, continuing without a model")
	default:
		log.Error().Err(err).Msg("model load failed, continuing without a model")
	}
}

// initializeHistory connects to Postgres. The service keeps running without
// a database; /health reports it and /predict answers 503.
func initializeHistory(ctx context.Context, c cfg.Settings, m *metrics.Metrics) *history.Repository {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, err := history.Open(connectCtx, c.DB.DSN())
	if err != nil {
		log.Error().Err(err).Str("host", c.DB.Host).Msg("database unavailable, continuing without history")
		return nil
	}
	log.Info().Str("host", c.DB.Host).Str("db", c.DB.Name).Msg("database connected")
	return repo.WithMetrics(m)
}

func startMetricsServer(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func startAPIServer(ctx context.Context, wg *sync.WaitGroup, server *api.Server, cancel context.CancelFunc) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown API server")
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all servers stopped")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
