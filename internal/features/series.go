// Package features turns raw household consumption and weather rows into the
// fixed feature matrix used by the forecasting model.
//
// Inputs are column oriented: every series carries a timestamp column plus
// optional value columns. A nil or empty value column means the column is
// absent; a NaN inside a present column means the value is missing. Building
// features is a pure transformation and never performs I/O.
package features

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrData reports malformed or absent input columns.
var ErrData = errors.New("data error")

// Column names used in error messages and CSV headers.
const (
	ColumnTimestamp = "timestamp"
	ColumnTotalKWh  = "total_kwh"
	ColumnAvgPowerW = "avg_power_w"
	ColumnTempC     = "temp_c"
	ColumnHumidity  = "humidity"
)

// ConsumptionSeries is a home's consumption history, one entry per row.
type ConsumptionSeries struct {
	Timestamps []string
	TotalKWh   []float64
	AvgPowerW  []float64
}

// WeatherSeries holds weather observations. It is usually sparser than the
// consumption series it is merged into.
type WeatherSeries struct {
	Timestamps []string
	TempC      []float64
	Humidity   []float64
}

// Len returns the number of rows in the series.
func (c ConsumptionSeries) Len() int {
	return len(c.Timestamps)
}

// HasTotalKWh reports whether the total_kwh column is present.
func (c ConsumptionSeries) HasTotalKWh() bool { return len(c.TotalKWh) > 0 }

// HasAvgPowerW reports whether the avg_power_w column is present.
func (c ConsumptionSeries) HasAvgPowerW() bool { return len(c.AvgPowerW) > 0 }

// Append adds one row. Pass NaN for a value that is missing.
func (c *ConsumptionSeries) Append(ts time.Time, totalKWh, avgPowerW float64) {
	c.Timestamps = append(c.Timestamps, FormatTimestamp(ts))
	c.TotalKWh = append(c.TotalKWh, totalKWh)
	c.AvgPowerW = append(c.AvgPowerW, avgPowerW)
}

func (c ConsumptionSeries) validate() error {
	n := len(c.Timestamps)
	if c.Timestamps == nil && (c.HasTotalKWh() || c.HasAvgPowerW()) {
		return fmt.Errorf("%w: consumption column %q not found", ErrData, ColumnTimestamp)
	}
	if c.HasTotalKWh() && len(c.TotalKWh) != n {
		return fmt.Errorf("%w: consumption column %q has %d values for %d timestamps", ErrData, ColumnTotalKWh, len(c.TotalKWh), n)
	}
	if c.HasAvgPowerW() && len(c.AvgPowerW) != n {
		return fmt.Errorf("%w: consumption column %q has %d values for %d timestamps", ErrData, ColumnAvgPowerW, len(c.AvgPowerW), n)
	}
	return nil
}

// Len returns the number of observations.
func (w WeatherSeries) Len() int {
	return len(w.Timestamps)
}

// HasTemperature reports whether the temp_c column is present.
func (w WeatherSeries) HasTemperature() bool { return len(w.TempC) > 0 }

// Append adds one observation. Pass NaN for a value that is missing.
func (w *WeatherSeries) Append(ts time.Time, tempC, humidity float64) {
	w.Timestamps = append(w.Timestamps, FormatTimestamp(ts))
	w.TempC = append(w.TempC, tempC)
	w.Humidity = append(w.Humidity, humidity)
}

func (w WeatherSeries) validate() error {
	n := len(w.Timestamps)
	if w.Timestamps == nil && w.HasTemperature() {
		return fmt.Errorf("%w: weather column %q not found", ErrData, ColumnTimestamp)
	}
	if w.HasTemperature() && len(w.TempC) != n {
		return fmt.Errorf("%w: weather column %q has %d values for %d timestamps", ErrData, ColumnTempC, len(w.TempC), n)
	}
	if len(w.Humidity) > 0 && len(w.Humidity) != n {
		return fmt.Errorf("%w: weather column %q has %d values for %d timestamps", ErrData, ColumnHumidity, len(w.Humidity), n)
	}
	return nil
}

// timestampLayouts are tried in order. Fractional seconds are accepted by
// time.Parse after the seconds field even when a layout omits them.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses a raw timestamp and normalises it to UTC.
// Values without a zone are read as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way ParseTimestamp reads it back.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func valueAt(col []float64, i int) float64 {
	if len(col) == 0 {
		return math.NaN()
	}
	return col[i]
}
