package cfg

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"energy-forecast/internal/common"
	"energy-forecast/internal/ml"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath       string
	HTTPPort       int
	MetricsPort    int
	RequestTimeout time.Duration
	LogLevel       string

	DB DBSettings

	HomeID         string
	LocationID     string
	HistoryHours   int
	WeatherHours   int
	DefaultHorizon int
	MaxHorizon     int
	BaseRate       float64

	TrainingLookback time.Duration
	Trees            int
	MaxDepth         int
	Seed             uint64
	HoldoutRatio     float64
	TrainWorkers     int

	WeatherSource string
	WeatherURL    string
	Latitude      float64
	Longitude     float64
}

type DBSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type ConfigFile struct {
	System struct {
		DataPath       string `yaml:"dataPath"`
		HTTPPort       int    `yaml:"httpPort"`
		MetricsPort    int    `yaml:"metricsPort"`
		RequestTimeout string `yaml:"requestTimeout"`
		LogLevel       string `yaml:"logLevel"`
	} `yaml:"system"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Forecast struct {
		HomeID         string  `yaml:"homeID"`
		LocationID     string  `yaml:"locationID"`
		HistoryHours   int     `yaml:"historyHours"`
		WeatherHours   int     `yaml:"weatherHours"`
		DefaultHorizon int     `yaml:"defaultHorizon"`
		MaxHorizon     int     `yaml:"maxHorizon"`
		BaseRate       float64 `yaml:"baseRate"`
	} `yaml:"forecast"`

	Model struct {
		Trees            int     `yaml:"trees"`
		MaxDepth         int     `yaml:"maxDepth"`
		Seed             uint64  `yaml:"seed"`
		HoldoutRatio     float64 `yaml:"holdoutRatio"`
		Workers          int     `yaml:"workers"`
		TrainingLookback string  `yaml:"trainingLookback"`
	} `yaml:"model"`

	Weather struct {
		Source    string  `yaml:"source"`
		URL       string  `yaml:"url"`
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
	} `yaml:"weather"`
}

// LoadEnvFile reads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set. An empty
// path means ".env" in the working directory. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// Defaults returns the settings used when neither a file nor the environment
// says otherwise.
func Defaults() Settings {
	return Settings{
		DataPath:       common.DefaultDataPath,
		HTTPPort:       common.DefaultHTTPPort,
		MetricsPort:    common.DefaultMetricsPort,
		RequestTimeout: common.DefaultRequestTimeoutS * time.Second,
		LogLevel:       common.DefaultLogLevel,
		DB: DBSettings{
			Host:    common.DefaultDBHost,
			Port:    common.DefaultDBPort,
			User:    common.DefaultDBUser,
			Name:    common.DefaultDBName,
			SSLMode: common.DefaultDBSSLMode,
		},
		HomeID:           common.DefaultHomeID,
		LocationID:       common.DefaultLocationID,
		HistoryHours:     common.DefaultHistoryHours,
		WeatherHours:     common.DefaultWeatherHours,
		DefaultHorizon:   common.DefaultDefaultHorizon,
		MaxHorizon:       common.DefaultMaxHorizon,
		BaseRate:         common.DefaultBaseRate,
		TrainingLookback: common.DefaultTrainingLookback * time.Hour,
		Trees:            common.DefaultTrees,
		MaxDepth:         common.DefaultMaxDepth,
		Seed:             common.DefaultSeed,
		HoldoutRatio:     common.DefaultHoldoutRatio,
		WeatherSource:    common.DefaultWeatherSource,
		WeatherURL:       common.DefaultWeatherURL,
		Latitude:         common.DefaultLatitude,
		Longitude:        common.DefaultLongitude,
	}
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Defaults()
	applyFile(&settings, &config)
	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Defaults()
	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// applyFile copies every non-zero value of the file over s.
func applyFile(s *Settings, c *ConfigFile) {
	setString(&s.DataPath, c.System.DataPath)
	setInt(&s.HTTPPort, c.System.HTTPPort)
	setInt(&s.MetricsPort, c.System.MetricsPort)
	setDuration(&s.RequestTimeout, c.System.RequestTimeout)
	setString(&s.LogLevel, c.System.LogLevel)

	setString(&s.DB.Host, c.Database.Host)
	setInt(&s.DB.Port, c.Database.Port)
	setString(&s.DB.User, c.Database.User)
	setString(&s.DB.Password, c.Database.Password)
	setString(&s.DB.Name, c.Database.Name)
	setString(&s.DB.SSLMode, c.Database.SSLMode)

	setString(&s.HomeID, c.Forecast.HomeID)
	setString(&s.LocationID, c.Forecast.LocationID)
	setInt(&s.HistoryHours, c.Forecast.HistoryHours)
	setInt(&s.WeatherHours, c.Forecast.WeatherHours)
	setInt(&s.DefaultHorizon, c.Forecast.DefaultHorizon)
	setInt(&s.MaxHorizon, c.Forecast.MaxHorizon)
	setFloat(&s.BaseRate, c.Forecast.BaseRate)

	setInt(&s.Trees, c.Model.Trees)
	setInt(&s.MaxDepth, c.Model.MaxDepth)
	if c.Model.Seed != 0 {
		s.Seed = c.Model.Seed
	}
	setFloat(&s.HoldoutRatio, c.Model.HoldoutRatio)
	setInt(&s.TrainWorkers, c.Model.Workers)
	setDuration(&s.TrainingLookback, c.Model.TrainingLookback)

	setString(&s.WeatherSource, c.Weather.Source)
	setString(&s.WeatherURL, c.Weather.URL)
	setFloat(&s.Latitude, c.Weather.Latitude)
	setFloat(&s.Longitude, c.Weather.Longitude)
}

// applyEnv overrides s with every environment variable that is set and
// parses.
func applyEnv(s *Settings) {
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)
	s.HTTPPort = getIntOrDefault(common.EnvHTTPPort, s.HTTPPort)
	s.MetricsPort = getIntOrDefault(common.EnvMetricsPort, s.MetricsPort)
	s.RequestTimeout = getDurationOrDefault(common.EnvRequestTimeout, s.RequestTimeout)
	s.LogLevel = getEnvOrDefault(common.EnvLogLevel, s.LogLevel)

	s.DB.Host = getEnvOrDefault(common.EnvDBHost, s.DB.Host)
	s.DB.Port = getIntOrDefault(common.EnvDBPort, s.DB.Port)
	s.DB.User = getEnvOrDefault(common.EnvDBUser, s.DB.User)
	s.DB.Password = getEnvOrDefault(common.EnvDBPassword, s.DB.Password)
	s.DB.Name = getEnvOrDefault(common.EnvDBName, s.DB.Name)
	s.DB.SSLMode = getEnvOrDefault(common.EnvDBSSLMode, s.DB.SSLMode)

	s.HomeID = getEnvOrDefault(common.EnvHomeID, s.HomeID)
	s.LocationID = getEnvOrDefault(common.EnvLocationID, s.LocationID)
	s.HistoryHours = getIntOrDefault(common.EnvHistoryHours, s.HistoryHours)
	s.WeatherHours = getIntOrDefault(common.EnvWeatherHours, s.WeatherHours)
	s.DefaultHorizon = getIntOrDefault(common.EnvDefaultHorizon, s.DefaultHorizon)
	s.MaxHorizon = getIntOrDefault(common.EnvMaxHorizon, s.MaxHorizon)
	s.BaseRate = getFloatOrDefault(common.EnvBaseRate, s.BaseRate)

	s.TrainingLookback = getDurationOrDefault(common.EnvTrainingLookback, s.TrainingLookback)
	s.Trees = getIntOrDefault(common.EnvTrees, s.Trees)
	s.MaxDepth = getIntOrDefault(common.EnvMaxDepth, s.MaxDepth)
	s.Seed = getUintOrDefault(common.EnvSeed, s.Seed)
	s.HoldoutRatio = getFloatOrDefault(common.EnvHoldoutRatio, s.HoldoutRatio)
	s.TrainWorkers = getIntOrDefault(common.EnvTrainWorkers, s.TrainWorkers)

	s.WeatherSource = strings.ToLower(getEnvOrDefault(common.EnvWeatherSource, s.WeatherSource))
	s.WeatherURL = getEnvOrDefault(common.EnvWeatherURL, s.WeatherURL)
	s.Latitude = getFloatOrDefault(common.EnvLatitude, s.Latitude)
	s.Longitude = getFloatOrDefault(common.EnvLongitude, s.Longitude)
}

// TrainConfig returns the model settings in the form the trainer takes.
func (s *Settings) TrainConfig() ml.TrainConfig {
	return ml.TrainConfig{
		Trees:        s.Trees,
		MaxDepth:     s.MaxDepth,
		Seed:         s.Seed,
		HoldoutRatio: s.HoldoutRatio,
		Workers:      s.TrainWorkers,
	}
}

// DSN returns the lib/pq connection string for the database settings.
func (d DBSettings) DSN() string {
	parts := []string{
		"host=" + quoteDSN(d.Host),
		"port=" + strconv.Itoa(d.Port),
		"user=" + quoteDSN(d.User),
		"dbname=" + quoteDSN(d.Name),
		"sslmode=" + quoteDSN(d.SSLMode),
	}
	if d.Password != "" {
		parts = append(parts, "password="+quoteDSN(d.Password))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// validateSettings checks every setting and reports all problems at once.
func validateSettings(s *Settings) error {
	var result *multierror.Error

	if s.DataPath == "" {
		result = multierror.Append(result, fmt.Errorf("data path cannot be empty"))
	}
	if s.HTTPPort < common.MinPort || s.HTTPPort > common.MaxPort {
		result = multierror.Append(result, fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinPort, common.MaxPort, s.HTTPPort))
	}
	if s.MetricsPort < common.MinPort || s.MetricsPort > common.MaxPort {
		result = multierror.Append(result, fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinPort, common.MaxPort, s.MetricsPort))
	}
	if s.MetricsPort == s.HTTPPort {
		result = multierror.Append(result, fmt.Errorf("metrics port and HTTP port must differ, both are %d", s.HTTPPort))
	}
	if s.RequestTimeout < time.Second || s.RequestTimeout > 10*time.Minute {
		result = multierror.Append(result, fmt.Errorf("request timeout must be between 1s and 10m, got %v", s.RequestTimeout))
	}

	if s.DB.Host == "" {
		result = multierror.Append(result, fmt.Errorf("database host cannot be empty"))
	}
	if s.DB.Port <= 0 || s.DB.Port > common.MaxPort {
		result = multierror.Append(result, fmt.Errorf("database port must be between 1 and %d, got %d", common.MaxPort, s.DB.Port))
	}
	if s.DB.Name == "" {
		result = multierror.Append(result, fmt.Errorf("database name cannot be empty"))
	}

	if s.HomeID == "" {
		result = multierror.Append(result, fmt.Errorf("home ID cannot be empty"))
	}
	if s.HistoryHours < 1 {
		result = multierror.Append(result, fmt.Errorf("history hours must be at least 1, got %d", s.HistoryHours))
	}
	if s.WeatherHours < 0 {
		result = multierror.Append(result, fmt.Errorf("weather hours cannot be negative, got %d", s.WeatherHours))
	}
	if s.MaxHorizon < 1 || s.MaxHorizon > common.MaxHorizonLimit {
		result = multierror.Append(result, fmt.Errorf("max horizon must be between 1 and %d hours, got %d", common.MaxHorizonLimit, s.MaxHorizon))
	}
	if s.DefaultHorizon < 1 || s.DefaultHorizon > s.MaxHorizon {
		result = multierror.Append(result, fmt.Errorf("default horizon must be between 1 and the max horizon %d, got %d", s.MaxHorizon, s.DefaultHorizon))
	}
	if s.BaseRate < 0 {
		result = multierror.Append(result, fmt.Errorf("base rate cannot be negative, got %f", s.BaseRate))
	}

	if s.TrainingLookback < 24*time.Hour {
		result = multierror.Append(result, fmt.Errorf("training lookback must be at least 24h, got %v", s.TrainingLookback))
	}
	if s.Trees < 1 || s.Trees > common.MaxTrees {
		result = multierror.Append(result, fmt.Errorf("trees must be between 1 and %d, got %d", common.MaxTrees, s.Trees))
	}
	if s.MaxDepth < 1 || s.MaxDepth > common.MaxTreeDepth {
		result = multierror.Append(result, fmt.Errorf("max depth must be between 1 and %d, got %d", common.MaxTreeDepth, s.MaxDepth))
	}
	if s.HoldoutRatio <= 0 || s.HoldoutRatio >= 1 {
		result = multierror.Append(result, fmt.Errorf("holdout ratio must be between 0 and 1 exclusive, got %f", s.HoldoutRatio))
	}
	if s.TrainWorkers < 0 {
		result = multierror.Append(result, fmt.Errorf("train workers cannot be negative, got %d", s.TrainWorkers))
	}

	switch s.WeatherSource {
	case common.WeatherSourceDB:
	case common.WeatherSourceOpenMeteo:
		if u, err := url.Parse(s.WeatherURL); err != nil || u.Scheme == "" || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("weather URL must be an absolute URL, got %q", s.WeatherURL))
		}
		if s.Latitude < -90 || s.Latitude > 90 {
			result = multierror.Append(result, fmt.Errorf("latitude must be between -90 and 90, got %f", s.Latitude))
		}
		if s.Longitude < -180 || s.Longitude > 180 {
			result = multierror.Append(result, fmt.Errorf("longitude must be between -180 and 180, got %f", s.Longitude))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("weather source must be %q or %q, got %q",
			common.WeatherSourceDB, common.WeatherSourceOpenMeteo, s.WeatherSource))
	}

	return result.ErrorOrNil()
}
