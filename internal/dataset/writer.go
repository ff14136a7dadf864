package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"energy-forecast/internal/features"
	"energy-forecast/internal/meter"
)

// WriteConsumption writes c with the columns it has.
func WriteConsumption(w io.Writer, c features.ConsumptionSeries) error {
	header := []string{features.ColumnTimestamp}
	if c.HasTotalKWh() {
		header = append(header, features.ColumnTotalKWh)
	}
	if c.HasAvgPowerW() {
		header = append(header, features.ColumnAvgPowerW)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, ts := range c.Timestamps {
		record := []string{ts}
		if c.HasTotalKWh() {
			record = append(record, formatFloat(c.TotalKWh[i]))
		}
		if c.HasAvgPowerW() {
			record = append(record, formatFloat(c.AvgPowerW[i]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteWeather writes w with the columns it has.
func WriteWeather(w io.Writer, s features.WeatherSeries) error {
	header := []string{features.ColumnTimestamp, features.ColumnTempC}
	hasHumidity := len(s.Humidity) > 0
	if hasHumidity {
		header = append(header, features.ColumnHumidity)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, ts := range s.Timestamps {
		temp := ""
		if s.HasTemperature() {
			temp = formatFloat(s.TempC[i])
		}
		record := []string{ts, temp}
		if hasHumidity {
			record = append(record, formatFloat(s.Humidity[i]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReadings writes raw readings of one home.
func WriteReadings(w io.Writer, homeID string, readings []meter.Reading) error {
	cw := csv.NewWriter(w)
	header := []string{features.ColumnTimestamp, ColumnHomeID, ColumnDeviceCategory, ColumnPowerW, ColumnEnergyWh}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range readings {
		record := []string{
			formatTime(r.Timestamp),
			homeID,
			r.DeviceCategory,
			formatFloat(r.PowerW),
			formatFloat(r.EnergyWh),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path and its directory and hands the file to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
