package model

import (
	"fmt"
	"time"
)

// Frequency describes the spacing between consecutive forecast dates.
type Frequency string

// FrequencyDaily is the only frequency produced by the forecast service.
const FrequencyDaily Frequency = "D"

// Step returns the duration between two points at this frequency.
func (f Frequency) Step() time.Duration {
	return 24 * time.Hour
}

// FeatureRow is a single future date together with the regressor values the
// model requires for it.
type FeatureRow struct {
	Date   time.Time
	Values map[string]float64
}

// ForecastPoint is one predicted value with its uncertainty interval.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Yhat  float64   `json:"yhat"`
	Lower float64   `json:"yhat_lower"`
	Upper float64   `json:"yhat_upper"`
	// Historical marks fitted values for dates the model was trained on.
	Historical bool `json:"historical,omitempty"`
}

// Bounded reports whether Lower <= Yhat <= Upper.
func (p ForecastPoint) Bounded() bool {
	return p.Lower <= p.Yhat && p.Yhat <= p.Upper
}

// ForecastWindow is an ordered sequence of forecast points for one ATM.
type ForecastWindow struct {
	ATMID     string          `json:"atm_id"`
	Frequency Frequency       `json:"frequency"`
	Points    []ForecastPoint `json:"points"`
}

// Future returns the points that are not historical fit values.
func (w ForecastWindow) Future() []ForecastPoint {
	out := make([]ForecastPoint, 0, len(w.Points))
	for _, p := range w.Points {
		if !p.Historical {
			out = append(out, p)
		}
	}
	return out
}

// History returns the fitted values for historical dates.
func (w ForecastWindow) History() []ForecastPoint {
	var out []ForecastPoint
	for _, p := range w.Points {
		if p.Historical {
			out = append(out, p)
		}
	}
	return out
}

// Check verifies ordering, contiguity and bound invariants of the window.
func (w ForecastWindow) Check() error {
	step := w.Frequency.Step()
	for i, p := range w.Points {
		if !p.Bounded() {
			return fmt.Errorf("point %s: bounds [%f, %f] do not contain %f",
				p.Date.Format(DateLayout), p.Lower, p.Upper, p.Yhat)
		}
		if i == 0 {
			continue
		}
		prev := w.Points[i-1]
		if !p.Date.After(prev.Date) {
			return fmt.Errorf("point %s: dates not strictly increasing", p.Date.Format(DateLayout))
		}
		// History may contain gaps, the future part must not.
		if !p.Historical && !prev.Historical && !p.Date.Equal(prev.Date.Add(step)) {
			return fmt.Errorf("point %s: gap after %s", p.Date.Format(DateLayout), prev.Date.Format(DateLayout))
		}
	}
	return nil
}

// AlertVerdict is the outcome of applying the stocking policy to a window.
type AlertVerdict struct {
	ATMID        string    `json:"atm_id"`
	MaxPredicted float64   `json:"max_predicted"`
	Threshold    float64   `json:"threshold"`
	Operator     string    `json:"operator"`
	IsAlert      bool      `json:"is_alert"`
	PeakDate     time.Time `json:"peak_date,omitzero"`
}
