// Package meter turns raw power-meter readings into the hourly consumption
// series the forecasting engine consumes.
package meter

import (
	"math"
	"sort"
	"time"

	"energy-forecast/internal/features"
)

// Reading is one raw sample of one device category. A home reports several
// categories per timestamp.
type Reading struct {
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
	DeviceCategory string    `db:"device_category" json:"device_category"`
	PowerW         float64   `db:"power_w" json:"power_w"`
	EnergyWh       float64   `db:"energy_wh" json:"energy_wh"`
}

type bucket struct {
	energyWh float64
	hasWh    bool
	power    map[int64]float64 // summed power per sample timestamp
}

// Hourly aggregates readings into UTC hour buckets. total_kwh is the summed
// energy of the bucket in kWh; avg_power_w is the mean, over the bucket's
// sample timestamps, of the power summed across categories. NaN values are
// ignored. Hours without readings are not emitted.
func Hourly(readings []Reading) features.ConsumptionSeries {
	buckets := make(map[int64]*bucket)
	for _, r := range readings {
		if r.Timestamp.IsZero() {
			continue
		}
		ts := r.Timestamp.UTC()
		hour := ts.Truncate(time.Hour).Unix()
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{power: make(map[int64]float64)}
			buckets[hour] = b
		}
		if !math.IsNaN(r.EnergyWh) {
			b.energyWh += r.EnergyWh
			b.hasWh = true
		}
		if !math.IsNaN(r.PowerW) {
			b.power[ts.UnixNano()] += r.PowerW
		}
	}

	hours := make([]int64, 0, len(buckets))
	for h := range buckets {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })

	var out features.ConsumptionSeries
	for _, h := range hours {
		b := buckets[h]
		kwh := math.NaN()
		if b.hasWh {
			kwh = b.energyWh / 1000
		}
		power := math.NaN()
		if len(b.power) > 0 {
			var sum float64
			for _, p := range b.power {
				sum += p
			}
			power = sum / float64(len(b.power))
		}
		out.Append(time.Unix(h, 0).UTC(), kwh, power)
	}
	return out
}

// ByCategory returns the energy of each device category in kWh.
func ByCategory(readings []Reading) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range readings {
		if math.IsNaN(r.EnergyWh) {
			continue
		}
		out[r.DeviceCategory] += r.EnergyWh / 1000
	}
	return out
}
