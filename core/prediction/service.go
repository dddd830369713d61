package prediction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/atmcast/core/logger"
	"github.com/kilianp07/atmcast/core/model"
)

// Service turns a loaded model into validated forecast windows. All
// prediction calls, future and historical, go through the same schema.
type Service struct {
	schema *FeatureSchema
	log    logger.Logger
}

// NewService returns a Service using schema to build regressor inputs.
func NewService(schema *FeatureSchema, log logger.Logger) *Service {
	if schema == nil {
		schema = &FeatureSchema{specs: map[string]RegressorSpec{}}
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Service{schema: schema, log: log}
}

// Schema returns the feature schema used by the service.
func (s *Service) Schema() *FeatureSchema { return s.schema }

// FutureDates returns horizon consecutive days starting the day after last.
func FutureDates(last time.Time, horizon int) []time.Time {
	start := model.Day(last)
	out := make([]time.Time, horizon)
	for i := range out {
		out[i] = start.AddDate(0, 0, i+1)
	}
	return out
}

// Forecast predicts horizonDays days past the model's last observation. With
// includeHistory the fitted values for the training dates are prepended and
// flagged as historical.
func (s *Service) Forecast(ctx context.Context, m Model, horizonDays int, includeHistory bool) (model.ForecastWindow, error) {
	if m == nil {
		return model.ForecastWindow{}, fmt.Errorf("%w: nil model", ErrPredictionFailed)
	}
	if horizonDays <= 0 {
		return model.ForecastWindow{}, fmt.Errorf("%w: horizon must be positive, got %d", ErrPredictionFailed, horizonDays)
	}
	if err := ctx.Err(); err != nil {
		return model.ForecastWindow{}, fmt.Errorf("%w: %w", ErrPredictionFailed, err)
	}

	required := RequiredRegressors(m)
	rows, err := s.schema.BuildFutureFeatures(required, FutureDates(m.LastObservation(), horizonDays))
	if err != nil {
		s.log.Errorf("atm %s: %v", m.ATMID(), err)
		return model.ForecastWindow{}, err
	}
	future, err := s.predict(m, required, rows)
	if err != nil {
		return model.ForecastWindow{}, err
	}

	var points []model.ForecastPoint
	if includeHistory {
		histRows, err := s.schema.BuildHistoryFeatures(required, m.History())
		if err != nil {
			return model.ForecastWindow{}, err
		}
		hist, err := s.predict(m, required, histRows)
		if err != nil {
			return model.ForecastWindow{}, err
		}
		for i := range hist {
			hist[i].Historical = true
		}
		points = append(points, hist...)
	}
	points = append(points, future...)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	w := model.ForecastWindow{ATMID: m.ATMID(), Frequency: model.FrequencyDaily, Points: points}
	if err := w.Check(); err != nil {
		return model.ForecastWindow{}, fmt.Errorf("%w: %v", ErrPredictionFailed, err)
	}
	s.log.Debugw("forecast computed", map[string]any{
		"atm_id":  m.ATMID(),
		"horizon": horizonDays,
		"history": includeHistory,
		"points":  len(points),
	})
	return w, nil
}

func (s *Service) predict(m Model, required []string, rows []model.FeatureRow) ([]model.ForecastPoint, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if err := Validate(required, rows); err != nil {
		return nil, err
	}
	pts, err := m.Predict(rows)
	if err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPredictionFailed, err)
	}
	if len(pts) != len(rows) {
		return nil, fmt.Errorf("%w: model returned %d points for %d rows", ErrPredictionFailed, len(pts), len(rows))
	}
	for i := range pts {
		if !pts[i].Date.Equal(rows[i].Date) {
			return nil, fmt.Errorf("%w: point %d dated %s, expected %s", ErrPredictionFailed, i,
				pts[i].Date.Format(model.DateLayout), rows[i].Date.Format(model.DateLayout))
		}
	}
	return pts, nil
}
