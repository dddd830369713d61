package prediction

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/atmcast/core/model"
)

// Calendar supplies per-date regressor values, for example a holiday flag.
type Calendar interface {
	Value(date time.Time) (float64, bool)
}

// DateCalendar maps YYYY-MM-DD dates to values.
type DateCalendar map[string]float64

// Value implements Calendar.
func (c DateCalendar) Value(date time.Time) (float64, bool) {
	v, ok := c[date.Format(model.DateLayout)]
	return v, ok
}

// RegressorSpec declares a regressor this deployment can supply. Dates not
// covered by Calendar use Default.
type RegressorSpec struct {
	Name     string
	Default  float64
	Calendar Calendar
}

// FeatureSchema is the set of regressors available for building prediction
// inputs. It never invents values for names it does not declare.
type FeatureSchema struct {
	specs map[string]RegressorSpec
}

// NewFeatureSchema returns a schema for the given specs.
func NewFeatureSchema(specs ...RegressorSpec) (*FeatureSchema, error) {
	s := &FeatureSchema{specs: make(map[string]RegressorSpec, len(specs))}
	for _, sp := range specs {
		if sp.Name == "" {
			return nil, fmt.Errorf("regressor name is required")
		}
		if _, ok := s.specs[sp.Name]; ok {
			return nil, fmt.Errorf("duplicate regressor %q", sp.Name)
		}
		s.specs[sp.Name] = sp
	}
	return s, nil
}

// Names returns the declared regressor names, sorted.
func (s *FeatureSchema) Names() []string {
	out := make([]string, 0, len(s.specs))
	for n := range s.specs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// RequiredRegressors returns the sorted, de-duplicated regressor names m needs.
func RequiredRegressors(m Model) []string {
	set := map[string]struct{}{}
	for _, n := range m.Regressors() {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Missing returns the required names the schema does not declare.
func (s *FeatureSchema) Missing(required []string) []string {
	var missing []string
	for _, n := range required {
		if _, ok := s.specs[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// BuildFutureFeatures returns one row per date carrying exactly the required
// regressors. It fails with ErrSchemaMismatch if any is undeclared.
func (s *FeatureSchema) BuildFutureFeatures(required []string, dates []time.Time) ([]model.FeatureRow, error) {
	rows := make([]model.FeatureRow, len(dates))
	for i, d := range dates {
		rows[i] = model.FeatureRow{Date: d}
	}
	return s.build(required, rows)
}

// BuildHistoryFeatures rebuilds the training rows of a model. Values recorded
// in the artifact are kept and any other required regressor is filled the
// same way as for future dates.
func (s *FeatureSchema) BuildHistoryFeatures(required []string, history []model.FeatureRow) ([]model.FeatureRow, error) {
	return s.build(required, history)
}

func (s *FeatureSchema) build(required []string, in []model.FeatureRow) ([]model.FeatureRow, error) {
	if missing := s.Missing(required); len(missing) > 0 {
		return nil, mismatch(missing)
	}
	rows := make([]model.FeatureRow, len(in))
	for i, r := range in {
		d := model.Day(r.Date)
		vals := make(map[string]float64, len(required))
		for _, n := range required {
			if v, ok := r.Values[n]; ok {
				vals[n] = v
				continue
			}
			sp := s.specs[n]
			v := sp.Default
			if sp.Calendar != nil {
				if cv, ok := sp.Calendar.Value(d); ok {
					v = cv
				}
			}
			vals[n] = v
		}
		rows[i] = model.FeatureRow{Date: d, Values: vals}
	}
	return rows, nil
}

// Validate checks that every row carries every required regressor.
func Validate(required []string, rows []model.FeatureRow) error {
	for _, row := range rows {
		var missing []string
		for _, n := range required {
			if _, ok := row.Values[n]; !ok {
				missing = append(missing, n)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: row %s missing %s", ErrSchemaMismatch,
				row.Date.Format(model.DateLayout), strings.Join(missing, ", "))
		}
	}
	return nil
}

func mismatch(missing []string) error {
	return fmt.Errorf("%w: regressors not supplied: %s", ErrSchemaMismatch, strings.Join(missing, ", "))
}
