package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"energy-forecast/internal/cfg"
	"energy-forecast/internal/dataset"
	"energy-forecast/internal/features"
	"energy-forecast/internal/history"
	"energy-forecast/internal/ml"
	"energy-forecast/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		source      = flag.String("source", "csv", "Data source: csv, readings, postgres")
		consumption = flag.String("consumption", "data/consumption.csv", "Hourly consumption CSV (source=csv)")
		readings    = flag.String("readings", "data/readings.csv", "Raw meter readings CSV (source=readings)")
		weatherPath = flag.String("weather", "", "Weather CSV (optional for csv and readings sources)")
		homeID      = flag.String("home", "", "Home ID (overrides config)")
		dataPath    = flag.String("data", "", "Model store directory (overrides config)")
		trees       = flag.Int("trees", 0, "Number of trees (overrides config)")
		depth       = flag.Int("depth", 0, "Maximum tree depth (overrides config)")
		seed        = flag.Uint64("seed", 0, "Random seed (overrides config)")
		noSave      = flag.Bool("dry-run", false, "Train and report without saving the model")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := cfg.LoadEnvFile(""); err != nil {
		log.Warn().Err(err).Msg(".env file could not be loaded")
	}
	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *homeID != "" {
		config.HomeID = *homeID
	}
	if *dataPath != "" {
		config.DataPath = *dataPath
	}
	tc := config.TrainConfig()
	if *trees > 0 {
		tc.Trees = *trees
	}
	if *depth > 0 {
		tc.MaxDepth = *depth
	}
	if *seed > 0 {
		tc.Seed = *seed
	}

	fmt.Println("=== Training Configuration ===")
	fmt.Printf("Source: %s\n", *source)
	fmt.Printf("Home ID: %s\n", config.HomeID)
	fmt.Printf("Model Store: %s\n", config.DataPath)
	fmt.Printf("Trees: %d  Max Depth: %d  Seed: %d  Holdout: %.0f%%\n", tc.Trees, tc.MaxDepth, tc.Seed, tc.HoldoutRatio*100)
	fmt.Println("==============================")

	ctx := context.Background()
	c, w, err := loadData(ctx, config, *source, *consumption, *readings, *weatherPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}

	store, err := storage.New(config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model store")
	}
	defer store.Close()

	engine := ml.NewEngine(store, tc, nil)
	var a *ml.Artifact
	if *noSave {
		a, err = engine.Train(ctx, c, w)
	} else {
		a, err = engine.Retrain(ctx, c, w)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}

	printSummary(a, !*noSave)
}

func loadData(ctx context.Context, config cfg.Settings, source, consumptionPath, readingsPath, weatherPath string) (features.ConsumptionSeries, features.WeatherSeries, error) {
	var (
		c   features.ConsumptionSeries
		w   features.WeatherSeries
		err error
	)
	switch source {
	case "csv":
		c, err = dataset.LoadConsumption(consumptionPath)
	case "readings":
		c, err = dataset.LoadReadings(readingsPath, config.HomeID)
	case "postgres":
		return loadFromPostgres(ctx, config)
	default:
		return c, w, fmt.Errorf("unknown source %q", source)
	}
	if err != nil {
		return c, w, err
	}
	if weatherPath != "" {
		w, err = dataset.LoadWeather(weatherPath)
	}
	return c, w, err
}

func loadFromPostgres(ctx context.Context, config cfg.Settings) (features.ConsumptionSeries, features.WeatherSeries, error) {
	repo, err := history.Open(ctx, config.DB.DSN())
	if err != nil {
		return features.ConsumptionSeries{}, features.WeatherSeries{}, err
	}
	defer repo.Close()

	start, end, err := repo.TrainingWindow(ctx, config.HomeID, config.TrainingLookback)
	if err != nil {
		return features.ConsumptionSeries{}, features.WeatherSeries{}, err
	}
	log.Info().Time("start", start).Time("end", end).Msg("Training window")

	c, err := repo.HourlyConsumption(ctx, config.HomeID, start, end)
	if err != nil {
		return features.ConsumptionSeries{}, features.WeatherSeries{}, err
	}
	w, err := repo.Weather(ctx, config.LocationID, start, end)
	if err != nil {
		log.Warn().Err(err).Msg("Weather unavailable, training with default weather")
		w = features.WeatherSeries{}
	}
	return c, w, nil
}

func printSummary(a *ml.Artifact, saved bool) {
	fmt.Println()
	fmt.Println("=== Training Results ===")
	fmt.Printf("Version:       %s\n", a.Version)
	fmt.Printf("Run ID:        %s\n", a.RunID)
	fmt.Printf("Trained At:    %s\n", a.TrainedAt.Format(time.RFC3339))
	fmt.Printf("Training Rows: %d\n", a.TrainingRows)
	fmt.Printf("Holdout Rows:  %d\n", a.HoldoutRows)
	fmt.Printf("RMSE:          %.4f kWh\n", a.Metrics.RMSE)
	fmt.Printf("MAE:           %.4f kWh\n", a.Metrics.MAE)
	fmt.Printf("MAPE:          %.2f%%\n", a.Metrics.MAPE)

	fmt.Println()
	fmt.Println("Feature importance:")
	importance := a.Importance()
	names := make([]string, 0, len(importance))
	for name := range importance {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return importance[names[i]] > importance[names[j]] })
	for _, name := range names {
		fmt.Printf("  %-18s %.4f\n", name, importance[name])
	}

	fmt.Println()
	if saved {
		fmt.Println("✓ Model saved")
	} else {
		fmt.Println("Dry run, model not saved")
	}
}
