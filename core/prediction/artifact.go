package prediction

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/atmcast/core/model"
)

// ArtifactVersion is the only artifact layout understood by DecodeArtifact.
const ArtifactVersion = 1

// Artifact is the serialized form of a fitted additive demand model.
type Artifact struct {
	ATMID           string            `json:"atm_id"`
	Version         int               `json:"version"`
	TrainedAt       time.Time         `json:"trained_at"`
	LastObservation string            `json:"last_observation"`
	Trend           TrendParams       `json:"trend"`
	Weekly          []float64         `json:"weekly"`
	Yearly          *FourierParams    `json:"yearly,omitempty"`
	Regressors      []RegressorParams `json:"regressors"`
	Sigma           float64           `json:"sigma"`
	IntervalWidth   float64           `json:"interval_width"`
	History         []HistoryPoint    `json:"history"`
}

// TrendParams describes a piecewise linear trend measured in days from Origin.
type TrendParams struct {
	Origin       string        `json:"origin"`
	Intercept    float64       `json:"intercept"`
	Slope        float64       `json:"slope"`
	Changepoints []Changepoint `json:"changepoints"`
}

// Changepoint adds Delta to the slope from Date onward.
type Changepoint struct {
	Date  string  `json:"date"`
	Delta float64 `json:"delta"`
}

// FourierParams holds the coefficients of a yearly Fourier series.
type FourierParams struct {
	Period float64   `json:"period"`
	Cos    []float64 `json:"cos"`
	Sin    []float64 `json:"sin"`
}

// RegressorParams describes one standardized additive regressor.
type RegressorParams struct {
	Name string  `json:"name"`
	Coef float64 `json:"coef"`
	Mu   float64 `json:"mu"`
	Std  float64 `json:"std"`
}

// HistoryPoint is one training observation.
type HistoryPoint struct {
	Date       string             `json:"date"`
	Y          float64            `json:"y"`
	Regressors map[string]float64 `json:"regressors,omitempty"`
}

type changepoint struct {
	t     float64
	delta float64
}

// AdditiveModel evaluates trend + weekly + yearly + regressor components.
type AdditiveModel struct {
	atmID      string
	trainedAt  time.Time
	lastObs    time.Time
	origin     time.Time
	intercept  float64
	slope      float64
	cps        []changepoint
	weekly     [7]float64
	yearly     *FourierParams
	regressors []RegressorParams
	names      []string
	sigma      float64
	z          float64
	history    []model.FeatureRow
}

var _ Model = (*AdditiveModel)(nil)

// DecodeArtifact reads a JSON artifact and builds the model it describes.
// Decoding and structural errors wrap ErrModelCorrupt.
func DecodeArtifact(r io.Reader) (*AdditiveModel, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrModelCorrupt, err)
	}
	m, err := NewAdditiveModel(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelCorrupt, err)
	}
	return m, nil
}

// NewAdditiveModel validates the artifact and returns the model.
//
//gocyclo:ignore
func NewAdditiveModel(a Artifact) (*AdditiveModel, error) {
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	if a.ATMID == "" {
		return nil, fmt.Errorf("atm_id is required")
	}
	lastObs, err := model.ParseDate(a.LastObservation)
	if err != nil {
		return nil, fmt.Errorf("last_observation: %v", err)
	}
	origin, err := model.ParseDate(a.Trend.Origin)
	if err != nil {
		return nil, fmt.Errorf("trend.origin: %v", err)
	}
	if len(a.Weekly) != 7 {
		return nil, fmt.Errorf("weekly must have 7 coefficients, got %d", len(a.Weekly))
	}
	if a.Sigma < 0 || math.IsNaN(a.Sigma) {
		return nil, fmt.Errorf("sigma must be >= 0")
	}
	if a.IntervalWidth <= 0 || a.IntervalWidth >= 1 {
		return nil, fmt.Errorf("interval_width must be in (0,1), got %f", a.IntervalWidth)
	}
	if a.Yearly != nil {
		if a.Yearly.Period <= 0 {
			return nil, fmt.Errorf("yearly.period must be positive")
		}
		if len(a.Yearly.Cos) != len(a.Yearly.Sin) {
			return nil, fmt.Errorf("yearly cos/sin length mismatch")
		}
	}

	m := &AdditiveModel{
		atmID:     a.ATMID,
		trainedAt: a.TrainedAt,
		lastObs:   lastObs,
		origin:    origin,
		intercept: a.Trend.Intercept,
		slope:     a.Trend.Slope,
		yearly:    a.Yearly,
		sigma:     a.Sigma,
		z:         distuv.UnitNormal.Quantile(0.5 + a.IntervalWidth/2),
	}
	copy(m.weekly[:], a.Weekly)

	for _, cp := range a.Trend.Changepoints {
		d, err := model.ParseDate(cp.Date)
		if err != nil {
			return nil, fmt.Errorf("changepoint: %v", err)
		}
		m.cps = append(m.cps, changepoint{t: m.days(d), delta: cp.Delta})
	}
	sort.Slice(m.cps, func(i, j int) bool { return m.cps[i].t < m.cps[j].t })

	seen := make(map[string]bool, len(a.Regressors))
	for _, r := range a.Regressors {
		if r.Name == "" {
			return nil, fmt.Errorf("regressor name is required")
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate regressor %q", r.Name)
		}
		if r.Std == 0 {
			r.Std = 1
		}
		seen[r.Name] = true
		m.regressors = append(m.regressors, r)
		m.names = append(m.names, r.Name)
	}
	sort.Strings(m.names)

	var prev time.Time
	for i, h := range a.History {
		d, err := model.ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("history[%d]: %v", i, err)
		}
		if i > 0 && !d.After(prev) {
			return nil, fmt.Errorf("history[%d]: dates not strictly increasing", i)
		}
		if d.After(lastObs) {
			return nil, fmt.Errorf("history[%d]: %s after last_observation", i, h.Date)
		}
		vals := make(map[string]float64, len(m.names))
		for _, n := range m.names {
			v, ok := h.Regressors[n]
			if !ok {
				return nil, fmt.Errorf("history[%d]: missing regressor %q", i, n)
			}
			vals[n] = v
		}
		m.history = append(m.history, model.FeatureRow{Date: d, Values: vals})
		prev = d
	}
	return m, nil
}

// ATMID implements Model.
func (m *AdditiveModel) ATMID() string { return m.atmID }

// LastObservation implements Model.
func (m *AdditiveModel) LastObservation() time.Time { return m.lastObs }

// TrainedAt returns the training timestamp recorded in the artifact.
func (m *AdditiveModel) TrainedAt() time.Time { return m.trainedAt }

// Regressors implements Model.
func (m *AdditiveModel) Regressors() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// History implements Model.
func (m *AdditiveModel) History() []model.FeatureRow {
	out := make([]model.FeatureRow, len(m.history))
	for i, h := range m.history {
		vals := make(map[string]float64, len(h.Values))
		for k, v := range h.Values {
			vals[k] = v
		}
		out[i] = model.FeatureRow{Date: h.Date, Values: vals}
	}
	return out
}

// Predict implements Model. Every row must carry all regressors.
func (m *AdditiveModel) Predict(rows []model.FeatureRow) ([]model.ForecastPoint, error) {
	out := make([]model.ForecastPoint, len(rows))
	for i, row := range rows {
		d := model.Day(row.Date)
		yhat := m.trend(d) + m.weekly[model.WeekdayIndex(d)] + m.seasonal(d)
		for _, r := range m.regressors {
			x, ok := row.Values[r.Name]
			if !ok {
				return nil, fmt.Errorf("%w: row %s missing %q", ErrSchemaMismatch, d.Format(model.DateLayout), r.Name)
			}
			yhat += r.Coef * (x - r.Mu) / r.Std
		}
		if math.IsNaN(yhat) || math.IsInf(yhat, 0) {
			return nil, fmt.Errorf("non-finite prediction for %s", d.Format(model.DateLayout))
		}
		// Cash demand cannot be negative.
		yhat = math.Max(yhat, 0)
		width := m.z * m.sigma * m.spread(d)
		out[i] = model.ForecastPoint{
			Date:  d,
			Yhat:  yhat,
			Lower: math.Max(yhat-width, 0),
			Upper: yhat + width,
		}
	}
	return out, nil
}

func (m *AdditiveModel) days(d time.Time) float64 {
	return d.Sub(m.origin).Hours() / 24
}

func (m *AdditiveModel) trend(d time.Time) float64 {
	t := m.days(d)
	y := m.intercept + m.slope*t
	for _, cp := range m.cps {
		if t < cp.t {
			break
		}
		y += cp.delta * (t - cp.t)
	}
	return y
}

func (m *AdditiveModel) seasonal(d time.Time) float64 {
	if m.yearly == nil {
		return 0
	}
	t := m.days(d)
	var s float64
	for k := range m.yearly.Cos {
		w := 2 * math.Pi * float64(k+1) * t / m.yearly.Period
		s += m.yearly.Cos[k]*math.Cos(w) + m.yearly.Sin[k]*math.Sin(w)
	}
	return s
}

// spread widens the interval with the distance from the last observation.
func (m *AdditiveModel) spread(d time.Time) float64 {
	h := d.Sub(m.lastObs).Hours() / 24
	if h <= 0 {
		return 1
	}
	return math.Sqrt(1 + h/30)
}
