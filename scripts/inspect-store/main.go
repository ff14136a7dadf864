package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"

	"energy-forecast/internal/storage"
)

func main() {
	var (
		dataPath = flag.String("data", "./data", "Data directory path")
		limit    = flag.Int("limit", 10, "Number of versions to list (0 for all)")
	)
	flag.Parse()

	fmt.Printf("Inspecting model store in: %s\n", *dataPath)

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	current, err := store.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load current model: %v", err)
	}
	if current == nil {
		fmt.Println("\nNo model saved yet.")
	} else {
		fmt.Println("\nCurrent model:")
		fmt.Printf("  Version:    %s\n", current.Version)
		fmt.Printf("  Type:       %s\n", current.ModelType)
		fmt.Printf("  Trained at: %s\n", current.TrainedAt)
		fmt.Printf("  Rows:       %d training, %d holdout\n", current.TrainingRows, current.HoldoutRows)
		fmt.Printf("  RMSE %.4f  MAE %.4f  MAPE %.2f%%\n", current.Metrics.RMSE, current.Metrics.MAE, current.Metrics.MAPE)
		fmt.Printf("  Blob:       %d bytes\n", len(current.ModelBlob))

		importance := current.Importance()
		names := current.FeatureNames
		sorted := append([]string(nil), names...)
		sort.Slice(sorted, func(i, j int) bool { return importance[sorted[i]] > importance[sorted[j]] })
		fmt.Println("  Top features:")
		for i, name := range sorted {
			if i == 5 {
				break
			}
			fmt.Printf("    %-18s %.4f\n", name, importance[name])
		}
	}

	versions, err := store.Versions(ctx, *limit)
	if err != nil {
		log.Fatalf("Failed to list versions: %v", err)
	}
	fmt.Printf("\nSaved versions (%d):\n", len(versions))
	for _, v := range versions {
		fmt.Printf("  %s  saved %s  rmse=%.4f  rows=%d\n",
			v.Version, v.SavedAt.Format("2006-01-02 15:04:05"), v.Metrics.RMSE, v.TrainingRows)
	}
}
