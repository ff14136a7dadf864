package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"energy-forecast/internal/common"
)

var allEnvKeys = []string{
	common.EnvConfigFile, common.EnvDataPath, common.EnvHTTPPort, common.EnvMetricsPort,
	common.EnvRequestTimeout, common.EnvLogLevel, common.EnvDBHost, common.EnvDBPort,
	common.EnvDBUser, common.EnvDBPassword, common.EnvDBName, common.EnvDBSSLMode,
	common.EnvHomeID, common.EnvLocationID, common.EnvHistoryHours, common.EnvWeatherHours,
	common.EnvTrainingLookback, common.EnvTrees, common.EnvMaxDepth, common.EnvSeed,
	common.EnvHoldoutRatio, common.EnvTrainWorkers, common.EnvDefaultHorizon,
	common.EnvMaxHorizon, common.EnvBaseRate, common.EnvWeatherSource, common.EnvWeatherURL,
	common.EnvLatitude, common.EnvLongitude,
}

// clearTestEnv blanks every setting so the host environment cannot leak in.
func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  string
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, s Settings) {
				if s.HTTPPort != 8000 {
					t.Errorf("expected default HTTPPort 8000, got %d", s.HTTPPort)
				}
				if s.HistoryHours != 168 {
					t.Errorf("expected default HistoryHours 168, got %d", s.HistoryHours)
				}
				if s.Trees != 100 || s.MaxDepth != 10 || s.Seed != 42 {
					t.Errorf("unexpected model defaults: trees=%d depth=%d seed=%d", s.Trees, s.MaxDepth, s.Seed)
				}
				if s.HoldoutRatio != 0.2 {
					t.Errorf("expected default HoldoutRatio 0.2, got %f", s.HoldoutRatio)
				}
				if s.BaseRate != 0.30 {
					t.Errorf("expected default BaseRate 0.30, got %f", s.BaseRate)
				}
				if s.TrainingLookback != 365*24*time.Hour {
					t.Errorf("expected default TrainingLookback of a year, got %v", s.TrainingLookback)
				}
				if s.WeatherSource != common.WeatherSourceDB {
					t.Errorf("expected default weather source db, got %s", s.WeatherSource)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				common.EnvHTTPPort:         "8100",
				common.EnvMetricsPort:      "9191",
				common.EnvRequestTimeout:   "45s",
				common.EnvHomeID:           "home_042",
				common.EnvTrees:            "50",
				common.EnvSeed:             "7",
				common.EnvHoldoutRatio:     "0.25",
				common.EnvTrainingLookback: "720h",
				common.EnvWeatherSource:    "OpenMeteo",
				common.EnvLatitude:         "48.1",
			},
			validate: func(t *testing.T, s Settings) {
				if s.HTTPPort != 8100 || s.MetricsPort != 9191 {
					t.Errorf("unexpected ports %d/%d", s.HTTPPort, s.MetricsPort)
				}
				if s.RequestTimeout != 45*time.Second {
					t.Errorf("expected RequestTimeout 45s, got %v", s.RequestTimeout)
				}
				if s.HomeID != "home_042" {
					t.Errorf("expected HomeID home_042, got %s", s.HomeID)
				}
				tc := s.TrainConfig()
				if tc.Trees != 50 || tc.Seed != 7 || tc.HoldoutRatio != 0.25 || tc.MaxDepth != 10 {
					t.Errorf("unexpected train config %+v", tc)
				}
				if s.TrainingLookback != 30*24*time.Hour {
					t.Errorf("expected TrainingLookback 720h, got %v", s.TrainingLookback)
				}
				if s.WeatherSource != common.WeatherSourceOpenMeteo {
					t.Errorf("expected weather source openmeteo, got %s", s.WeatherSource)
				}
				if s.Latitude != 48.1 {
					t.Errorf("expected Latitude 48.1, got %f", s.Latitude)
				}
			},
		},
		{
			name:    "unparsable values keep defaults",
			envVars: map[string]string{common.EnvTrees: "many", common.EnvRequestTimeout: "soon"},
			validate: func(t *testing.T, s Settings) {
				if s.Trees != 100 {
					t.Errorf("expected Trees to stay 100, got %d", s.Trees)
				}
				if s.RequestTimeout != 30*time.Second {
					t.Errorf("expected RequestTimeout to stay 30s, got %v", s.RequestTimeout)
				}
			},
		},
		{
			name:    "invalid holdout ratio",
			envVars: map[string]string{common.EnvHoldoutRatio: "1.5"},
			wantErr: "holdout ratio",
		},
		{
			name:    "unknown weather source",
			envVars: map[string]string{common.EnvWeatherSource: "satellite"},
			wantErr: "weather source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := Load()

			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearTestEnv(t)

	content := `
system:
  dataPath: /var/lib/forecast
  httpPort: 8001
  requestTimeout: 10s
database:
  host: db.internal
  name: energy_prod
  password: "s3cret pass"
forecast:
  homeID: home_007
  maxHorizon: 48
  baseRate: 0.25
model:
  trees: 20
  maxDepth: 6
  trainingLookback: 2160h
weather:
  source: openmeteo
  url: http://weather.local
  latitude: 40.4
  longitude: -3.7
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(common.EnvConfigFile, path)
	t.Setenv(common.EnvHomeID, "home_from_env")

	s, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.DataPath != "/var/lib/forecast" {
		t.Errorf("expected DataPath from file, got %s", s.DataPath)
	}
	if s.HTTPPort != 8001 || s.MetricsPort != common.DefaultMetricsPort {
		t.Errorf("unexpected ports %d/%d", s.HTTPPort, s.MetricsPort)
	}
	if s.RequestTimeout != 10*time.Second {
		t.Errorf("expected RequestTimeout 10s, got %v", s.RequestTimeout)
	}
	if s.HomeID != "home_from_env" {
		t.Errorf("expected environment to override the file, got %s", s.HomeID)
	}
	if s.MaxHorizon != 48 || s.BaseRate != 0.25 {
		t.Errorf("unexpected forecast settings %d/%f", s.MaxHorizon, s.BaseRate)
	}
	if s.Trees != 20 || s.MaxDepth != 6 || s.Seed != 42 {
		t.Errorf("unexpected model settings %d/%d/%d", s.Trees, s.MaxDepth, s.Seed)
	}
	if s.TrainingLookback != 90*24*time.Hour {
		t.Errorf("expected TrainingLookback 2160h, got %v", s.TrainingLookback)
	}
	if s.WeatherURL != "http://weather.local" || s.Longitude != -3.7 {
		t.Errorf("unexpected weather settings %s/%f", s.WeatherURL, s.Longitude)
	}
	if s.DB.Host != "db.internal" || s.DB.Port != 5432 {
		t.Errorf("unexpected database settings %+v", s.DB)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	clearTestEnv(t)

	t.Setenv(common.EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("expected read error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("system: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(common.EnvConfigFile, path)
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestDBSettings_DSN(t *testing.T) {
	d := DBSettings{Host: "localhost", Port: 5432, User: "energy", Name: "energy", SSLMode: "disable"}
	want := "host=localhost port=5432 user=energy dbname=energy sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	d.Password = `it's secret`
	want += ` password='it\'s secret'`
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearTestEnv(t)
	os.Unsetenv(common.EnvHomeID)
	t.Setenv(common.EnvBaseRate, "0.41")

	path := filepath.Join(t.TempDir(), "test.env")
	content := "HOME_ID=home_777\nBASE_RATE=0.99\n# comment\nHTTP_PORT=8123\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv(common.EnvHomeID); got != "home_777" {
		t.Errorf("HOME_ID = %q, want home_777", got)
	}
	if got := os.Getenv(common.EnvBaseRate); got != "0.41" {
		t.Errorf("BASE_RATE = %q, existing value must win", got)
	}

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if settings.HomeID != "home_777" || settings.BaseRate != 0.41 {
		t.Errorf("Load() = %q/%v, want home_777/0.41", settings.HomeID, settings.BaseRate)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}
