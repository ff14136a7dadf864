package dataset

import (
	"math"
	"math/rand/v2"
	"time"

	"energy-forecast/internal/features"
	"energy-forecast/internal/meter"
)

// loadRange is the hourly energy range of a device category in kWh.
type loadRange struct{ min, max float64 }

var deviceLoads = map[string]loadRange{
	"base_load":     {0.2, 0.3},
	"office":        {0.05, 0.15},
	"hvac":          {0.2, 2.0},
	"garden_pump":   {0.1, 0.5},
	"ev_charger":    {0.0, 7.0},
	"entertainment": {0.02, 0.2},
	"kitchen":       {0.05, 1.5},
}

// HomeProfile describes a synthetic home.
type HomeProfile struct {
	ID         string
	LocationID string
	BaseTempC  float64
	Devices    []string
}

// Homes are the sample homes the generator knows about.
var Homes = []HomeProfile{
	{ID: "home_001", LocationID: "suburbs", BaseTempC: 15, Devices: []string{"base_load", "office", "hvac", "garden_pump", "ev_charger", "entertainment", "kitchen"}},
	{ID: "home_002", LocationID: "rural", BaseTempC: 13, Devices: []string{"base_load", "hvac", "kitchen", "entertainment"}},
	{ID: "home_003", LocationID: "downtown", BaseTempC: 18, Devices: []string{"base_load", "hvac", "kitchen", "entertainment"}},
	{ID: "home_005", LocationID: "lakefront", BaseTempC: 12, Devices: []string{"base_load", "hvac", "kitchen", "garden_pump"}},
	{ID: "home_006", LocationID: "city", BaseTempC: 17, Devices: []string{"base_load", "kitchen", "entertainment"}},
}

// FindHome returns the profile with the given id.
func FindHome(id string) (HomeProfile, bool) {
	for _, h := range Homes {
		if h.ID == id {
			return h, true
		}
	}
	return HomeProfile{}, false
}

// Generator produces deterministic synthetic readings and weather.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, 0))}
}

// Readings returns one reading per device and hour from start for hours
// hours. Energy and power are equal because each sample covers one hour.
func (g *Generator) Readings(home HomeProfile, start time.Time, hours int) []meter.Reading {
	start = start.UTC().Truncate(time.Hour)
	out := make([]meter.Reading, 0, hours*len(home.Devices))
	for i := 0; i < hours; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		for _, device := range home.Devices {
			kwh := g.deviceLoad(device, ts)
			out = append(out, meter.Reading{
				Timestamp:      ts,
				DeviceCategory: device,
				PowerW:         kwh * 1000,
				EnergyWh:       kwh * 1000,
			})
		}
	}
	return out
}

func (g *Generator) deviceLoad(device string, ts time.Time) float64 {
	r, ok := deviceLoads[device]
	if !ok {
		return 0
	}
	hour, month := ts.Hour(), ts.Month()
	switch device {
	case "hvac":
		seasonal := 0.5
		switch month {
		case time.December, time.January, time.February, time.June, time.July, time.August:
			seasonal = 1.5
		}
		return g.uniform(r) * seasonal
	case "ev_charger":
		if hour >= 22 || hour <= 5 {
			return g.rng.Float64() * r.max
		}
		return 0
	case "kitchen":
		factor := 0.7
		if (hour >= 6 && hour <= 8) || (hour >= 17 && hour <= 19) {
			factor = 1.5
		}
		return g.uniform(r) * factor
	default:
		return g.uniform(r)
	}
}

func (g *Generator) uniform(r loadRange) float64 {
	return r.min + g.rng.Float64()*(r.max-r.min)
}

// Weather returns hourly observations following a yearly temperature cycle
// around the home's base temperature plus a small daily swing.
func (g *Generator) Weather(home HomeProfile, start time.Time, hours int) features.WeatherSeries {
	start = start.UTC().Truncate(time.Hour)
	var w features.WeatherSeries
	for i := 0; i < hours; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		yearPhase := 2 * math.Pi * float64(ts.YearDay()-1) / 365
		dayPhase := 2 * math.Pi * float64(ts.Hour()) / 24
		temp := home.BaseTempC - 10*math.Cos(yearPhase) - 3*math.Cos(dayPhase) + g.rng.NormFloat64()*0.5
		humidity := 50 + 20*math.Cos(yearPhase) + g.rng.NormFloat64()*2
		w.Append(ts, round(temp, 2), round(math.Min(math.Max(humidity, 0), 100), 1))
	}
	return w
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
