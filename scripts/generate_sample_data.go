package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/features"
	"energy-forecast/internal/meter"
)

func main() {
	var (
		outDir = flag.String("out", "data", "Output directory")
		homeID = flag.String("home", "home_001", "Home profile to generate")
		days   = flag.Int("days", 90, "Number of days of data to generate")
		seed   = flag.Uint64("seed", 42, "Random seed")
	)
	flag.Parse()

	home, ok := dataset.FindHome(*homeID)
	if !ok {
		log.Fatalf("Unknown home %q", *homeID)
	}

	start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -*days)
	hours := *days * 24

	fmt.Printf("Generating sample data for %s...\n", home.ID)
	fmt.Printf("  Days: %d\n", *days)
	fmt.Printf("  Location: %s\n", home.LocationID)
	fmt.Printf("  Devices: %v\n", home.Devices)
	fmt.Printf("  Output: %s\n", *outDir)

	g := dataset.NewGenerator(*seed)
	readings := g.Readings(home, start, hours)
	weather := g.Weather(home, start, hours)
	consumption := meter.Hourly(readings)

	files := map[string]func(io.Writer) error{
		"readings.csv": func(w io.Writer) error {
			return dataset.WriteReadings(w, home.ID, readings)
		},
		"consumption.csv": func(w io.Writer) error {
			return dataset.WriteConsumption(w, consumption)
		},
		"weather.csv": func(w io.Writer) error {
			return dataset.WriteWeather(w, weather)
		},
	}
	for name, write := range files {
		path := filepath.Join(*outDir, name)
		if err := dataset.WriteFile(path, write); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	fmt.Printf("✓ Generated %d readings, %d hourly rows and %d weather observations\n",
		len(readings), consumption.Len(), weather.Len())
	printTotals(readings, consumption)
}

func printTotals(readings []meter.Reading, c features.ConsumptionSeries) {
	var total float64
	for _, v := range c.TotalKWh {
		total += v
	}
	fmt.Printf("  Total: %.1f kWh\n", total)
	for category, kwh := range meter.ByCategory(readings) {
		fmt.Printf("  %-14s %.1f kWh\n", category, kwh)
	}
}
