package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) // a Monday

func hourly(n int, value func(i int) float64) ConsumptionSeries {
	var c ConsumptionSeries
	for i := 0; i < n; i++ {
		c.Append(base.Add(time.Duration(i)*time.Hour), value(i), math.NaN())
	}
	c.AvgPowerW = nil
	return c
}

func TestBuild_EmptyInput(t *testing.T) {
	rows, err := Build(ConsumptionSeries{}, WeatherSeries{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuild_MissingTimestampColumn(t *testing.T) {
	_, err := Build(ConsumptionSeries{TotalKWh: []float64{1, 2}}, WeatherSeries{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrData))
	assert.Contains(t, err.Error(), "timestamp")
}

func TestBuild_ColumnLengthMismatch(t *testing.T) {
	c := ConsumptionSeries{
		Timestamps: []string{"2024-03-04T00:00:00Z", "2024-03-04T01:00:00Z"},
		TotalKWh:   []float64{1},
	}
	_, err := Build(c, WeatherSeries{})
	require.ErrorIs(t, err, ErrData)
	assert.Contains(t, err.Error(), "total_kwh")
}

func TestBuild_DropsInvalidTimestampsAndSorts(t *testing.T) {
	c := ConsumptionSeries{
		Timestamps: []string{"2024-03-04 02:00:00", "not-a-time", "", "2024-03-04T00:00:00Z", "2024-03-04 01:00:00"},
		TotalKWh:   []float64{3, 99, 98, 1, 2},
	}
	rows, err := Build(c, WeatherSeries{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for i, want := range []float64{1, 2, 3} {
		assert.Equal(t, base.Add(time.Duration(i)*time.Hour), rows[i].Timestamp)
		assert.Equal(t, want, rows[i].Get(TotalKWh))
	}
}

func TestBuild_CalendarFields(t *testing.T) {
	// Saturday 2024-03-09 06:00 UTC.
	c := ConsumptionSeries{
		Timestamps: []string{"2024-03-09T06:00:00Z"},
		TotalKWh:   []float64{1.5},
	}
	rows, err := Build(c, WeatherSeries{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, 6.0, r.Get(Hour))
	assert.Equal(t, 5.0, r.Get(DayOfWeek))
	assert.Equal(t, 3.0, r.Get(Month))
	assert.Equal(t, 1.0, r.Get(IsWeekend))
	assert.InDelta(t, 1.0, r.Get(HourSin), 1e-12)
	assert.InDelta(t, 0.0, r.Get(HourCos), 1e-12)
}

func TestRow_SetTimeMidnight(t *testing.T) {
	var r Row
	r.SetTime(base)
	assert.InDelta(t, 0.0, r.Get(HourSin), 1e-12)
	assert.InDelta(t, 1.0, r.Get(HourCos), 1e-12)
	assert.Equal(t, 0.0, r.Get(DayOfWeek), "Monday is day 0")
	assert.Equal(t, 0.0, r.Get(IsWeekend))
}

func TestRow_SetTimeConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	var r Row
	r.SetTime(time.Date(2024, 3, 4, 1, 0, 0, 0, loc))
	assert.Equal(t, 23.0, r.Get(Hour))
	assert.Equal(t, 6.0, r.Get(DayOfWeek), "Sunday in UTC")
	assert.Equal(t, 1.0, r.Get(IsWeekend))
}

func TestBuild_LagsAndRolling(t *testing.T) {
	rows, err := Build(hourly(200, func(i int) float64 { return float64(i) }), WeatherSeries{})
	require.NoError(t, err)
	require.Len(t, rows, 200)

	assert.Equal(t, 9.0, rows[10].Get(Lag1h))
	assert.Equal(t, 6.0, rows[30].Get(Lag24h))
	assert.Equal(t, 1.0, rows[169].Get(Lag168h))

	// Rolling window of the last 24 rows: values 76..99 at row 99.
	assert.InDelta(t, 87.5, rows[99].Get(RollingMean24h), 1e-9)
	assert.InDelta(t, math.Sqrt(50), rows[99].Get(RollingStd24h), 1e-9)

	// Early rows use whatever history exists.
	assert.InDelta(t, 1.0, rows[2].Get(RollingMean24h), 1e-9)
}

func TestBuild_FillPolicy(t *testing.T) {
	rows, err := Build(hourly(30, func(i int) float64 { return float64(i + 1) }), WeatherSeries{})
	require.NoError(t, err)

	// lag_1h[0] is back-filled from lag_1h[1].
	assert.Equal(t, 1.0, rows[0].Get(Lag1h))
	// lag_24h is back-filled from the first row that has one.
	assert.Equal(t, 1.0, rows[0].Get(Lag24h))
	// Not enough history anywhere for lag_168h: zero.
	for _, r := range rows {
		assert.Equal(t, 0.0, r.Get(Lag168h))
	}
	// A single observation has no standard deviation; back-filled from row 1.
	assert.InDelta(t, rows[1].Get(RollingStd24h), rows[0].Get(RollingStd24h), 1e-12)
}

func TestBuild_NoConsumptionColumnZeroesLags(t *testing.T) {
	c := ConsumptionSeries{
		Timestamps: []string{"2024-03-04T00:00:00Z", "2024-03-04T01:00:00Z"},
		AvgPowerW:  []float64{500, 700},
	}
	rows, err := Build(c, WeatherSeries{})
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, 0.0, r.Get(Lag1h))
		assert.Equal(t, 0.0, r.Get(RollingMean24h))
	}
	assert.Equal(t, 700.0, rows[1].Get(AvgPowerW))
}

func TestBuild_DefaultWeather(t *testing.T) {
	rows, err := Build(hourly(5, func(int) float64 { return 1 }), WeatherSeries{})
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, DefaultTempC, r.Get(TempC))
		assert.Equal(t, DefaultHumidity, r.Get(Humidity))
	}

	// A weather series without a temperature column also falls back.
	w := WeatherSeries{Timestamps: []string{"2024-03-04T00:00:00Z"}, Humidity: []float64{80}}
	rows, err = Build(hourly(2, func(int) float64 { return 1 }), w)
	require.NoError(t, err)
	assert.Equal(t, 20.0, rows[1].Get(TempC))
	assert.Equal(t, 50.0, rows[1].Get(Humidity))
}

func TestBuild_NearestWeather(t *testing.T) {
	w := WeatherSeries{
		Timestamps: []string{
			"2024-03-04T03:00:00Z",
			"2024-03-04T00:00:00Z",
			"2024-03-04T00:00:00Z", // duplicate, first one wins
			"garbage",
		},
		TempC:    []float64{13, 10, -5, 99},
		Humidity: []float64{63, 60, 0, 99},
	}
	rows, err := Build(hourly(6, func(int) float64 { return 1 }), w)
	require.NoError(t, err)

	want := []float64{10, 10, 13, 13, 13, 13}
	for i, r := range rows {
		assert.Equal(t, want[i], r.Get(TempC), "row %d", i)
	}
	assert.Equal(t, 60.0, rows[1].Get(Humidity))
	assert.Equal(t, 63.0, rows[2].Get(Humidity))
}

func TestBuild_NearestWeatherTieGoesEarlier(t *testing.T) {
	w := WeatherSeries{
		Timestamps: []string{"2024-03-04T00:00:00Z", "2024-03-04T02:00:00Z"},
		TempC:      []float64{5, 7},
		Humidity:   []float64{40, 45},
	}
	rows, err := Build(hourly(2, func(int) float64 { return 1 }), w)
	require.NoError(t, err)
	assert.Equal(t, 5.0, rows[1].Get(TempC))
}

func TestBuild_ColumnSetIndependentOfLength(t *testing.T) {
	for _, n := range []int{1, 2, 25, 170} {
		rows, err := Build(hourly(n, func(i int) float64 { return float64(i % 7) }), WeatherSeries{})
		require.NoError(t, err)
		require.Len(t, rows, n)
		for _, r := range rows {
			v := r.Vector(nil)
			require.Len(t, v, NumFeatures)
			for i, x := range v {
				assert.False(t, math.IsNaN(x), "n=%d feature %s is NaN", n, Names()[i])
			}
		}
	}
}

func TestNames(t *testing.T) {
	names := Names()
	require.Len(t, names, 13)
	assert.Equal(t, []string{
		"hour", "day_of_week", "month", "is_weekend",
		"hour_sin", "hour_cos", "temp_c", "humidity",
		"lag_1h", "lag_24h", "lag_168h",
		"rolling_mean_24h", "rolling_std_24h",
	}, names)

	names[0] = "mutated"
	assert.Equal(t, "hour", Names()[0])

	idx, ok := Index("lag_1h")
	assert.True(t, ok)
	assert.Equal(t, Lag1h, idx)
	_, ok = Index("total_kwh")
	assert.False(t, ok, "targets are not model inputs")
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	for _, raw := range []string{
		"2024-03-04T05:06:07Z",
		"2024-03-04T07:06:07+02:00",
		"2024-03-04 05:06:07",
		"2024-03-04 05:06:07+00",
		" 2024-03-04T05:06:07 ",
	} {
		got, ok := ParseTimestamp(raw)
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), "%s parsed as %s", raw, got)
	}

	_, ok := ParseTimestamp("04/03/2024")
	assert.False(t, ok)
}

func TestWindow(t *testing.T) {
	w := NewWindow(3)
	assert.True(t, math.IsNaN(w.Mean()))

	w.Add(1)
	assert.Equal(t, 1.0, w.Mean())
	assert.True(t, math.IsNaN(w.Std()))

	w.Add(math.NaN())
	w.Add(3)
	assert.Equal(t, 2.0, w.Mean())
	assert.InDelta(t, math.Sqrt2, w.Std(), 1e-12)

	w.Add(5) // evicts 1
	assert.Equal(t, 4.0, w.Mean())
}
