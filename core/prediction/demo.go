package prediction

import (
	"time"

	"github.com/kilianp07/atmcast/core/model"
)

// DemoModel returns a deterministic weekly demand shape. It stands in for a
// real model when the dashboard runs in demo mode and its output must always
// be labelled as such by the caller.
type DemoModel struct {
	ATM string
	// Base is the average daily demand. Zero means 15000.
	Base float64
	// Last is the last pretend observation. Zero means yesterday (UTC).
	Last time.Time
}

var _ Model = DemoModel{}

// demoShape scales Base per weekday, Monday first.
var demoShape = [7]float64{0.9, 0.85, 0.95, 1.05, 1.35, 1.25, 0.65}

// ATMID implements Model.
func (d DemoModel) ATMID() string { return d.ATM }

// LastObservation implements Model.
func (d DemoModel) LastObservation() time.Time {
	if d.Last.IsZero() {
		return model.Day(time.Now().UTC()).AddDate(0, 0, -1)
	}
	return model.Day(d.Last)
}

// Regressors implements Model. The demo model needs none.
func (DemoModel) Regressors() []string { return nil }

// History implements Model. The demo model has no training data.
func (DemoModel) History() []model.FeatureRow { return nil }

// Predict implements Model.
func (d DemoModel) Predict(rows []model.FeatureRow) ([]model.ForecastPoint, error) {
	base := d.Base
	if base == 0 {
		base = 15000
	}
	out := make([]model.ForecastPoint, len(rows))
	for i, r := range rows {
		day := model.Day(r.Date)
		y := base * demoShape[model.WeekdayIndex(day)]
		out[i] = model.ForecastPoint{Date: day, Yhat: y, Lower: y * 0.8, Upper: y * 1.2}
	}
	return out, nil
}
