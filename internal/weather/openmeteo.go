// Package weather fetches hourly temperature and humidity observations from
// the Open-Meteo API.
package weather

import (
	"context"
	"fmt"
	"math"
	"time"

	"energy-forecast/internal/features"
	"energy-forecast/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	forecastPath = "/v1/forecast"
	sourceLabel  = "openmeteo"
)

type Client struct {
	rest     *resty.Client
	base     string
	lat, lon float64
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewClient(base string, lat, lon float64, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= 500
		})
	return &Client{rest: r, base: base, lat: lat, lon: lon, now: time.Now}
}

// WithMetrics makes the client count rows and errors.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

type hourlyResp struct {
	Hourly struct {
		Time        []string   `json:"time"`
		Temperature []*float64 `json:"temperature_2m"`
		Humidity    []*float64 `json:"relative_humidity_2m"`
	} `json:"hourly"`
}

type errorResp struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Recent returns the hourly observations of the last hours up to now.
// Missing values come back as NaN.
func (c *Client) Recent(ctx context.Context, hours int) (features.WeatherSeries, error) {
	if hours < 1 {
		hours = 1
	}
	pastDays := (hours + 23) / 24

	result := &hourlyResp{}
	apiErr := &errorResp{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":      fmt.Sprintf("%.4f", c.lat),
			"longitude":     fmt.Sprintf("%.4f", c.lon),
			"hourly":        "temperature_2m,relative_humidity_2m",
			"past_days":     fmt.Sprint(pastDays),
			"forecast_days": "1",
			"timezone":      "UTC",
		}).
		SetResult(result).
		SetError(apiErr).
		Get(c.base + forecastPath)
	if err != nil {
		return features.WeatherSeries{}, c.fail(fmt.Errorf("open-meteo request: %w", err))
	}
	if resp.IsError() {
		return features.WeatherSeries{}, c.fail(fmt.Errorf("open-meteo: %s: %s", resp.Status(), apiErr.Reason))
	}

	h := result.Hourly
	if len(h.Temperature) != len(h.Time) || (len(h.Humidity) > 0 && len(h.Humidity) != len(h.Time)) {
		return features.WeatherSeries{}, c.fail(fmt.Errorf("open-meteo: %d times, %d temperatures, %d humidities",
			len(h.Time), len(h.Temperature), len(h.Humidity)))
	}

	now := c.now().UTC()
	from := now.Add(-time.Duration(hours) * time.Hour)
	var w features.WeatherSeries
	for i, raw := range h.Time {
		ts, ok := features.ParseTimestamp(raw)
		if !ok || ts.After(now) || !ts.After(from) {
			continue
		}
		hum := features.DefaultHumidity
		if len(h.Humidity) > 0 {
			hum = value(h.Humidity[i])
		}
		w.Append(ts, value(h.Temperature[i]), hum)
	}

	if c.metrics != nil {
		c.metrics.RowsRetrieved.WithLabelValues(sourceLabel).Add(float64(w.Len()))
	}
	log.Debug().Int("observations", w.Len()).Int("hours", hours).Msg("fetched weather")
	return w, nil
}

func (c *Client) fail(err error) error {
	if c.metrics != nil {
		c.metrics.SourceErrors.WithLabelValues(sourceLabel).Inc()
	}
	log.Warn().Err(err).Msg("weather fetch failed")
	return err
}

func value(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
