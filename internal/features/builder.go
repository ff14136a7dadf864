package features

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

type stamped struct {
	t   time.Time
	idx int
}

// Build derives the feature matrix from a consumption history and weather
// observations. Rows come back in chronological order. Lags and rolling
// statistics are computed over row offsets, so they line up with wall-clock
// hours only for hourly-regular input. Missing values are back-filled, then
// forward-filled, then set to zero.
func Build(c ConsumptionSeries, w WeatherSeries) ([]Row, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return []Row{}, nil
	}

	order, dropped := parseAndSort(c.Timestamps)
	if dropped > 0 {
		log.Warn().
			Int("dropped", dropped).
			Int("rows", c.Len()).
			Msg("dropped consumption rows with invalid timestamps")
	}
	if len(order) == 0 {
		return []Row{}, nil
	}

	rows := make([]Row, len(order))
	for i, s := range order {
		rows[i].SetTime(s.t)
		rows[i].values[TotalKWh] = valueAt(c.TotalKWh, s.idx)
		rows[i].values[AvgPowerW] = valueAt(c.AvgPowerW, s.idx)
	}

	addLagFeatures(rows, c.HasTotalKWh())

	if err := mergeWeather(rows, w); err != nil {
		return nil, err
	}

	fillMissing(rows)
	return rows, nil
}

// parseAndSort parses raw timestamps, drops the ones that do not parse and
// returns the rest in ascending order together with their source index.
func parseAndSort(raw []string) ([]stamped, int) {
	out := make([]stamped, 0, len(raw))
	for i, s := range raw {
		t, ok := ParseTimestamp(s)
		if !ok {
			continue
		}
		out = append(out, stamped{t: t, idx: i})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].t.Before(out[j].t)
	})
	return out, len(raw) - len(out)
}

func addLagFeatures(rows []Row, hasConsumption bool) {
	if !hasConsumption {
		for i := range rows {
			for _, col := range []int{Lag1h, Lag24h, Lag168h, RollingMean24h, RollingStd24h} {
				rows[i].values[col] = math.NaN()
			}
		}
		return
	}

	win := NewWindow(RollingWindow)
	for i := range rows {
		rows[i].values[Lag1h] = lagged(rows, i, LagShort)
		rows[i].values[Lag24h] = lagged(rows, i, LagDay)
		rows[i].values[Lag168h] = lagged(rows, i, LagWeek)

		win.Add(rows[i].values[TotalKWh])
		rows[i].values[RollingMean24h] = win.Mean()
		rows[i].values[RollingStd24h] = win.Std()
	}
}

func lagged(rows []Row, i, offset int) float64 {
	if i < offset {
		return math.NaN()
	}
	return rows[i-offset].values[TotalKWh]
}

// mergeWeather attaches to every row the weather observation whose timestamp
// is closest to the row's, in either direction. Equal distances resolve to
// the earlier observation.
func mergeWeather(rows []Row, w WeatherSeries) error {
	if !w.HasTemperature() {
		for i := range rows {
			rows[i].values[TempC] = DefaultTempC
			rows[i].values[Humidity] = DefaultHumidity
		}
		return nil
	}
	if err := w.validate(); err != nil {
		return err
	}

	obs := dedupeWeather(w)
	if len(obs) == 0 {
		for i := range rows {
			rows[i].values[TempC] = math.NaN()
			rows[i].values[Humidity] = math.NaN()
		}
		return nil
	}

	hasHumidity := len(w.Humidity) > 0
	for i := range rows {
		t := rows[i].Timestamp
		j := sort.Search(len(obs), func(k int) bool { return !obs[k].t.Before(t) })
		switch {
		case j == len(obs):
			j = len(obs) - 1
		case j > 0 && t.Sub(obs[j-1].t) <= obs[j].t.Sub(t):
			j--
		}
		src := obs[j].idx
		rows[i].values[TempC] = w.TempC[src]
		if hasHumidity {
			rows[i].values[Humidity] = w.Humidity[src]
		} else {
			rows[i].values[Humidity] = DefaultHumidity
		}
	}
	return nil
}

// dedupeWeather keeps the first observation per timestamp, in input order,
// and returns the survivors sorted by time.
func dedupeWeather(w WeatherSeries) []stamped {
	seen := make(map[int64]struct{}, w.Len())
	out := make([]stamped, 0, w.Len())
	dropped := 0
	for i, s := range w.Timestamps {
		t, ok := ParseTimestamp(s)
		if !ok {
			dropped++
			continue
		}
		key := t.UnixNano()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, stamped{t: t, idx: i})
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("dropped weather rows with invalid timestamps")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].t.Before(out[j].t)
	})
	return out
}

func fillMissing(rows []Row) {
	for col := 0; col < numColumns; col++ {
		next := math.NaN()
		for i := len(rows) - 1; i >= 0; i-- {
			if math.IsNaN(rows[i].values[col]) {
				rows[i].values[col] = next
			} else {
				next = rows[i].values[col]
			}
		}
		prev := math.NaN()
		for i := range rows {
			if math.IsNaN(rows[i].values[col]) {
				rows[i].values[col] = prev
			} else {
				prev = rows[i].values[col]
			}
		}
		for i := range rows {
			if math.IsNaN(rows[i].values[col]) {
				rows[i].values[col] = 0
			}
		}
	}
}
