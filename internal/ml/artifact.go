package ml

import (
	"context"
	"fmt"
	"time"
)

// ModelType names the regressor stored in ModelBlob.
const ModelType = "random_forest_regressor"

// Metrics are the holdout validation scores of a training run.
type Metrics struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"`
}

// Artifact is a trained model plus its metadata. An artifact is never
// mutated after it is built; a new training run produces a new one.
type Artifact struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	RunID        string    `json:"run_id"`
	ModelType    string    `json:"model_type"`
	Metrics      Metrics   `json:"metrics"`
	FeatureNames []string  `json:"feature_names"`
	Importances  []float64 `json:"importances,omitempty"`
	TrainingRows int       `json:"training_rows"`
	HoldoutRows  int       `json:"holdout_rows"`
	ModelBlob    []byte    `json:"model_blob"`
}

// VersionInfo is the metadata of an artifact without its model blob.
type VersionInfo struct {
	Version      string    `json:"version"`
	RunID        string    `json:"run_id"`
	TrainedAt    time.Time `json:"trained_at"`
	Metrics      Metrics   `json:"metrics"`
	TrainingRows int       `json:"training_rows"`
	SavedAt      time.Time `json:"saved_at,omitempty"`
}

// ArtifactStore persists artifacts as one atomic unit. Load returns nil and
// no error when nothing has been saved yet.
type ArtifactStore interface {
	Save(ctx context.Context, a *Artifact) error
	Load(ctx context.Context) (*Artifact, error)
}

// Info returns the artifact's metadata.
func (a *Artifact) Info() VersionInfo {
	return VersionInfo{
		Version:      a.Version,
		RunID:        a.RunID,
		TrainedAt:    a.TrainedAt,
		Metrics:      a.Metrics,
		TrainingRows: a.TrainingRows,
	}
}

// Importance returns the importance of each feature keyed by name.
func (a *Artifact) Importance() map[string]float64 {
	out := make(map[string]float64, len(a.Importances))
	for i, v := range a.Importances {
		if i < len(a.FeatureNames) {
			out[a.FeatureNames[i]] = v
		}
	}
	return out
}

// Validate checks that the artifact carries everything prediction needs.
func (a *Artifact) Validate() error {
	switch {
	case a.Version == "":
		return fmt.Errorf("%w: artifact has no version", ErrLoad)
	case len(a.FeatureNames) == 0:
		return fmt.Errorf("%w: artifact has no feature names", ErrLoad)
	case len(a.ModelBlob) == 0:
		return fmt.Errorf("%w: artifact has no model blob", ErrLoad)
	case len(a.Importances) > 0 && len(a.Importances) != len(a.FeatureNames):
		return fmt.Errorf("%w: %d importances for %d features", ErrLoad, len(a.Importances), len(a.FeatureNames))
	}
	return nil
}
