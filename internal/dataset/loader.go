// Package dataset reads and writes the CSV files used for offline training
// and synthetic sample data.
//
// Files carry a header row and are matched by column name, so extra columns
// are ignored and value columns may be left out. An empty or unparsable
// value cell is read as missing (NaN).
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"energy-forecast/internal/features"
	"energy-forecast/internal/meter"

	"github.com/rs/zerolog/log"
)

// Column names of the raw readings file.
const (
	ColumnHomeID         = "home_id"
	ColumnDeviceCategory = "device_category"
	ColumnPowerW         = "power_w"
	ColumnEnergyWh       = "energy_wh"
)

type table struct {
	indices map[string]int
	records [][]string
}

func readTable(r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &table{indices: map[string]int{}}, nil
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int)
	for i, col := range header {
		indices[strings.ToLower(strings.TrimSpace(col))] = i
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV records: %w", err)
	}
	return &table{indices: indices, records: records}, nil
}

func (t *table) has(col string) bool {
	_, ok := t.indices[col]
	return ok
}

func (t *table) str(record []string, col string) string {
	idx, ok := t.indices[col]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (t *table) float(record []string, col string) float64 {
	v, err := strconv.ParseFloat(t.str(record, col), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// column returns the values of col, or nil when the file has no such column.
func (t *table) column(col string) []float64 {
	if !t.has(col) {
		return nil
	}
	out := make([]float64, len(t.records))
	for i, record := range t.records {
		out[i] = t.float(record, col)
	}
	return out
}

func (t *table) timestamps() []string {
	if !t.has(features.ColumnTimestamp) {
		return nil
	}
	out := make([]string, len(t.records))
	for i, record := range t.records {
		out[i] = t.str(record, features.ColumnTimestamp)
	}
	return out
}

// ReadConsumption reads a consumption file with a timestamp column and at
// least one of total_kwh and avg_power_w. Timestamps are kept as written;
// the feature builder parses them.
func ReadConsumption(r io.Reader) (features.ConsumptionSeries, error) {
	t, err := readTable(r)
	if err != nil {
		return features.ConsumptionSeries{}, err
	}
	if len(t.records) > 0 && !t.has(features.ColumnTimestamp) {
		return features.ConsumptionSeries{}, fmt.Errorf("%w: consumption file has no %q column", features.ErrData, features.ColumnTimestamp)
	}
	return features.ConsumptionSeries{
		Timestamps: t.timestamps(),
		TotalKWh:   t.column(features.ColumnTotalKWh),
		AvgPowerW:  t.column(features.ColumnAvgPowerW),
	}, nil
}

// ReadWeather reads a weather file with timestamp, temp_c and optionally
// humidity columns.
func ReadWeather(r io.Reader) (features.WeatherSeries, error) {
	t, err := readTable(r)
	if err != nil {
		return features.WeatherSeries{}, err
	}
	if len(t.records) > 0 && !t.has(features.ColumnTimestamp) {
		return features.WeatherSeries{}, fmt.Errorf("%w: weather file has no %q column", features.ErrData, features.ColumnTimestamp)
	}
	return features.WeatherSeries{
		Timestamps: t.timestamps(),
		TempC:      t.column(features.ColumnTempC),
		Humidity:   t.column(features.ColumnHumidity),
	}, nil
}

// ReadReadings reads raw meter readings. When homeID is not empty and the
// file has a home_id column, only that home's rows are returned. Rows with an
// unparsable timestamp are skipped.
func ReadReadings(r io.Reader, homeID string) ([]meter.Reading, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if len(t.records) > 0 && !t.has(features.ColumnTimestamp) {
		return nil, fmt.Errorf("%w: readings file has no %q column", features.ErrData, features.ColumnTimestamp)
	}

	filter := homeID != "" && t.has(ColumnHomeID)
	readings := make([]meter.Reading, 0, len(t.records))
	skipped := 0
	for _, record := range t.records {
		if filter && t.str(record, ColumnHomeID) != homeID {
			continue
		}
		ts, ok := features.ParseTimestamp(t.str(record, features.ColumnTimestamp))
		if !ok {
			skipped++
			continue
		}
		readings = append(readings, meter.Reading{
			Timestamp:      ts,
			DeviceCategory: t.str(record, ColumnDeviceCategory),
			PowerW:         t.float(record, ColumnPowerW),
			EnergyWh:       t.float(record, ColumnEnergyWh),
		})
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("Dropped readings with unparsable timestamps")
	}
	return readings, nil
}

// LoadConsumption reads a consumption file from disk.
func LoadConsumption(path string) (features.ConsumptionSeries, error) {
	var c features.ConsumptionSeries
	err := withFile(path, func(r io.Reader) (err error) {
		c, err = ReadConsumption(r)
		return err
	})
	if err == nil {
		log.Info().Str("file", path).Int("rows", c.Len()).Msg("Loaded consumption data")
	}
	return c, err
}

// LoadWeather reads a weather file from disk.
func LoadWeather(path string) (features.WeatherSeries, error) {
	var w features.WeatherSeries
	err := withFile(path, func(r io.Reader) (err error) {
		w, err = ReadWeather(r)
		return err
	})
	if err == nil {
		log.Info().Str("file", path).Int("rows", w.Len()).Msg("Loaded weather data")
	}
	return w, err
}

// LoadReadings reads a raw readings file from disk and aggregates it into
// an hourly consumption series.
func LoadReadings(path, homeID string) (features.ConsumptionSeries, error) {
	var readings []meter.Reading
	err := withFile(path, func(r io.Reader) (err error) {
		readings, err = ReadReadings(r, homeID)
		return err
	})
	if err != nil {
		return features.ConsumptionSeries{}, err
	}
	c := meter.Hourly(readings)
	log.Info().
		Str("file", path).
		Str("home_id", homeID).
		Int("readings", len(readings)).
		Int("hours", c.Len()).
		Msg("Loaded meter readings")
	return c, nil
}

func withFile(path string, fn func(io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	if err := fn(file); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// formatFloat writes NaN as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
