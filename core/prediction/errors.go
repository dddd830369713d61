package prediction

import (
	"context"
	"errors"
)

var (
	// ErrModelNotFound is returned when no artifact exists for an ATM.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelCorrupt is returned when an artifact cannot be decoded or is
	// structurally invalid.
	ErrModelCorrupt = errors.New("model corrupt")
	// ErrSchemaMismatch is returned when the regressors required by a model
	// are not all supplied.
	ErrSchemaMismatch = errors.New("regressor schema mismatch")
	// ErrPredictionFailed wraps any other failure raised while predicting.
	ErrPredictionFailed = errors.New("prediction failed")
)

// Kind returns a short label for err suitable for metrics and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrModelNotFound):
		return "model_not_found"
	case errors.Is(err, ErrModelCorrupt):
		return "model_corrupt"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrPredictionFailed):
		return "prediction_failed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
