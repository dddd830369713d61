package prediction

import (
	"time"

	"github.com/kilianp07/atmcast/core/model"
)

// Model is a fitted forecasting model bound to a single ATM. Implementations
// are immutable once constructed and safe for concurrent use.
type Model interface {
	// ATMID returns the identifier the model was trained for.
	ATMID() string

	// LastObservation is the last date present in the training data.
	LastObservation() time.Time

	// Regressors lists the exogenous regressor names required at prediction
	// time.
	Regressors() []string

	// History returns the training dates with the regressor values they were
	// fitted with.
	History() []model.FeatureRow

	// Predict returns one point per row, in row order.
	Predict(rows []model.FeatureRow) ([]model.ForecastPoint, error)
}
