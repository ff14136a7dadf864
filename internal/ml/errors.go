package ml

import (
	"errors"

	"energy-forecast/internal/features"
)

var (
	// ErrData reports malformed input: a missing timestamp column, no target
	// column, or an empty feature matrix at training time.
	ErrData = features.ErrData

	// ErrModelNotLoaded is returned by prediction before any artifact has been
	// trained or loaded.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrValidation reports an invalid request parameter such as a horizon
	// below one hour.
	ErrValidation = errors.New("validation error")

	// ErrLoad reports persisted artifact bytes that cannot be decoded.
	ErrLoad = errors.New("artifact load error")

	// ErrTrainingInProgress is returned when another training run holds the
	// engine's training lock.
	ErrTrainingInProgress = errors.New("training already in progress")
)
