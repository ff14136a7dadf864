// Package history reads household consumption and weather rows from the
// Postgres database the ingestion pipeline writes to.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"energy-forecast/internal/features"
	"energy-forecast/internal/meter"
	"energy-forecast/internal/metrics"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const sourceLabel = "postgres"

// ErrNoData is returned by DataRange when there are no readings at all.
var ErrNoData = errors.New("no readings in database")

type Repository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db), nil
}

func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// WithMetrics makes the repository count rows and errors.
func (r *Repository) WithMetrics(m *metrics.Metrics) *Repository {
	r.metrics = m
	return r
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type readingRow struct {
	Timestamp      time.Time       `db:"timestamp"`
	DeviceCategory string          `db:"device_category"`
	PowerW         sql.NullFloat64 `db:"power_w"`
	EnergyWh       sql.NullFloat64 `db:"energy_wh"`
}

// RecentReadings returns the raw readings of a home from the last hours,
// oldest first.
func (r *Repository) RecentReadings(ctx context.Context, homeID string, hours int) ([]meter.Reading, error) {
	const query = `
		SELECT
			timestamp,
			device_category,
			power_w,
			energy_wh
		FROM raw_readings
		WHERE home_id = $1
		AND timestamp > NOW() - make_interval(hours => $2)
		ORDER BY timestamp ASC`

	var rows []readingRow
	if err := r.db.SelectContext(ctx, &rows, query, homeID, hours); err != nil {
		return nil, r.fail(fmt.Errorf("failed to query recent readings: %w", err))
	}

	out := make([]meter.Reading, len(rows))
	for i, row := range rows {
		out[i] = meter.Reading{
			Timestamp:      row.Timestamp.UTC(),
			DeviceCategory: row.DeviceCategory,
			PowerW:         nullable(row.PowerW),
			EnergyWh:       nullable(row.EnergyWh),
		}
	}
	r.count(len(out))
	return out, nil
}

type hourlyRow struct {
	Hour      time.Time       `db:"timestamp"`
	TotalKWh  sql.NullFloat64 `db:"total_kwh"`
	AvgPowerW sql.NullFloat64 `db:"avg_power_w"`
}

// HourlyConsumption returns the hourly aggregates in [start, end). An empty
// homeID sums over all homes.
func (r *Repository) HourlyConsumption(ctx context.Context, homeID string, start, end time.Time) (features.ConsumptionSeries, error) {
	const query = `
		SELECT
			hour AS timestamp,
			SUM(total_kwh) AS total_kwh,
			AVG(avg_power_w) AS avg_power_w
		FROM hourly_consumption
		WHERE hour >= $1 AND hour < $2
		AND ($3 = '' OR home_id = $3)
		GROUP BY hour
		ORDER BY hour`

	var rows []hourlyRow
	if err := r.db.SelectContext(ctx, &rows, query, start.UTC(), end.UTC(), homeID); err != nil {
		return features.ConsumptionSeries{}, r.fail(fmt.Errorf("failed to query hourly consumption: %w", err))
	}

	var c features.ConsumptionSeries
	for _, row := range rows {
		c.Append(row.Hour, nullable(row.TotalKWh), nullable(row.AvgPowerW))
	}
	r.count(len(rows))
	return c, nil
}

type weatherRow struct {
	Timestamp time.Time       `db:"timestamp"`
	TempC     sql.NullFloat64 `db:"temp_c"`
	Humidity  sql.NullFloat64 `db:"humidity"`
}

// Weather returns observations in [start, end). An empty locationID matches
// every location.
func (r *Repository) Weather(ctx context.Context, locationID string, start, end time.Time) (features.WeatherSeries, error) {
	const query = `
		SELECT
			timestamp,
			temp_c,
			humidity
		FROM weather
		WHERE timestamp >= $1 AND timestamp < $2
		AND ($3 = '' OR location_id = $3)
		ORDER BY timestamp`

	var rows []weatherRow
	if err := r.db.SelectContext(ctx, &rows, query, start.UTC(), end.UTC(), locationID); err != nil {
		return features.WeatherSeries{}, r.fail(fmt.Errorf("failed to query weather: %w", err))
	}
	return r.weatherSeries(rows), nil
}

// RecentWeather returns the observations of the last hours.
func (r *Repository) RecentWeather(ctx context.Context, locationID string, hours int) (features.WeatherSeries, error) {
	const query = `
		SELECT
			timestamp,
			temp_c,
			humidity
		FROM weather
		WHERE timestamp > NOW() - make_interval(hours => $1)
		AND ($2 = '' OR location_id = $2)
		ORDER BY timestamp`

	var rows []weatherRow
	if err := r.db.SelectContext(ctx, &rows, query, hours, locationID); err != nil {
		return features.WeatherSeries{}, r.fail(fmt.Errorf("failed to query recent weather: %w", err))
	}
	return r.weatherSeries(rows), nil
}

func (r *Repository) weatherSeries(rows []weatherRow) features.WeatherSeries {
	var w features.WeatherSeries
	for _, row := range rows {
		w.Append(row.Timestamp, nullable(row.TempC), nullable(row.Humidity))
	}
	r.count(len(rows))
	return w
}

// DataRange returns the timestamps of the oldest and newest raw reading of a
// home, or of all homes when homeID is empty.
func (r *Repository) DataRange(ctx context.Context, homeID string) (time.Time, time.Time, error) {
	const query = `
		SELECT
			MIN(timestamp) AS min_ts,
			MAX(timestamp) AS max_ts
		FROM raw_readings
		WHERE ($1 = '' OR home_id = $1)`

	var span struct {
		Min sql.NullTime `db:"min_ts"`
		Max sql.NullTime `db:"max_ts"`
	}
	if err := r.db.GetContext(ctx, &span, query, homeID); err != nil {
		return time.Time{}, time.Time{}, r.fail(fmt.Errorf("failed to query data range: %w", err))
	}
	if !span.Min.Valid || !span.Max.Valid {
		return time.Time{}, time.Time{}, ErrNoData
	}
	return span.Min.Time.UTC(), span.Max.Time.UTC(), nil
}

// TrainingWindow returns the most recent lookback of data, clipped to the
// oldest reading. The end is exclusive and falls one hour after the newest
// reading's hour so that hour is included.
func (r *Repository) TrainingWindow(ctx context.Context, homeID string, lookback time.Duration) (time.Time, time.Time, error) {
	first, last, err := r.DataRange(ctx, homeID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := last.Truncate(time.Hour).Add(time.Hour)
	start := end.Add(-lookback)
	if first.After(start) {
		start = first.Truncate(time.Hour)
	}
	log.Info().
		Str("home_id", homeID).
		Time("start", start).
		Time("end", end).
		Msg("training window")
	return start, end, nil
}

func (r *Repository) fail(err error) error {
	if r.metrics != nil {
		r.metrics.SourceErrors.WithLabelValues(sourceLabel).Inc()
	}
	log.Error().Err(err).Msg("history query failed")
	return err
}

func (r *Repository) count(n int) {
	if r.metrics != nil {
		r.metrics.RowsRetrieved.WithLabelValues(sourceLabel).Add(float64(n))
	}
}

func nullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
