package features

import (
	"math"
	"time"
)

// Column indices. The first NumFeatures entries are the model inputs in the
// order of Names; the remaining columns carry the target sources.
const (
	Hour = iota
	DayOfWeek
	Month
	IsWeekend
	HourSin
	HourCos
	TempC
	Humidity
	Lag1h
	Lag24h
	Lag168h
	RollingMean24h
	RollingStd24h
	TotalKWh
	AvgPowerW

	numColumns
)

// NumFeatures is the width of a model input vector.
const NumFeatures = RollingStd24h + 1

// Lag offsets and rolling window, in rows. They mean hours only when the
// input is hourly-regular.
const (
	LagShort      = 1
	LagDay        = 24
	LagWeek       = 168
	RollingWindow = 24
)

// Weather values used when no temperature column is supplied.
const (
	DefaultTempC    = 20.0
	DefaultHumidity = 50.0
)

var columnNames = [numColumns]string{
	"hour", "day_of_week", "month", "is_weekend",
	"hour_sin", "hour_cos", "temp_c", "humidity",
	"lag_1h", "lag_24h", "lag_168h",
	"rolling_mean_24h", "rolling_std_24h",
	ColumnTotalKWh, ColumnAvgPowerW,
}

// Names returns the ordered feature list shared by training and inference.
// The returned slice is a copy.
func Names() []string {
	out := make([]string, NumFeatures)
	copy(out, columnNames[:NumFeatures])
	return out
}

// Index resolves a feature name to its column index.
func Index(name string) (int, bool) {
	for i := 0; i < NumFeatures; i++ {
		if columnNames[i] == name {
			return i, true
		}
	}
	return 0, false
}

// Row is one derived feature record keyed by timestamp.
type Row struct {
	Timestamp time.Time
	values    [numColumns]float64
}

// Get returns the value of column i.
func (r *Row) Get(i int) float64 { return r.values[i] }

// Set overwrites column i.
func (r *Row) Set(i int, v float64) { r.values[i] = v }

// Vector writes the model inputs into dst, in Names order, and returns it.
func (r *Row) Vector(dst []float64) []float64 {
	dst = append(dst[:0], r.values[:NumFeatures]...)
	return dst
}

// SetTime moves the row to t and recomputes the calendar and cyclical fields.
// All other fields are left untouched.
func (r *Row) SetTime(t time.Time) {
	t = t.UTC()
	r.Timestamp = t
	hour := t.Hour()
	dow := weekday(t)
	r.values[Hour] = float64(hour)
	r.values[DayOfWeek] = float64(dow)
	r.values[Month] = float64(t.Month())
	r.values[IsWeekend] = 0
	if dow >= 5 {
		r.values[IsWeekend] = 1
	}
	angle := 2 * math.Pi * float64(hour) / 24
	r.values[HourSin] = math.Sin(angle)
	r.values[HourCos] = math.Cos(angle)
}

// weekday returns the day of week with Monday = 0 and Sunday = 6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
