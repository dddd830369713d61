package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/atmcast/core/alert"
	"github.com/kilianp07/atmcast/core/model"
	"github.com/kilianp07/atmcast/core/prediction"
)

// RegressorConfig declares one regressor value source. Dates maps
// YYYY-MM-DD to a value; other dates use Default.
type RegressorConfig struct {
	Name    string             `json:"name" validate:"required"`
	Default float64            `json:"default"`
	Dates   map[string]float64 `json:"dates"`
}

// DashboardConfig binds the dashboard to one ATM and its model.
type DashboardConfig struct {
	ATMID           string            `json:"atm_id" validate:"required"`
	AllowedATMs     []string          `json:"allowed_atms"`
	ModelDir        string            `json:"model_dir" default:"models" validate:"required"`
	ModelPattern    string            `json:"model_pattern" default:"atm_{atm_id}.json"`
	Threshold       float64           `json:"threshold" default:"20000" validate:"gte=0"`
	Operator        string            `json:"operator" default:"gt"`
	Horizon         int               `json:"horizon" default:"7" validate:"gte=1"`
	MaxHorizon      int               `json:"max_horizon" default:"90" validate:"gtefield=Horizon"`
	DemoFallback    bool              `json:"demo_fallback"`
	Regressors      []RegressorConfig `json:"regressors" validate:"dive"`
	RefreshInterval time.Duration     `json:"refresh_interval"`
	LoadTimeout     time.Duration     `json:"load_timeout" default:"10s"`
}

// Validate checks cross-field rules.
func (c DashboardConfig) Validate() error {
	if !strings.Contains(c.ModelPattern, "{atm_id}") {
		return fmt.Errorf("dashboard.model_pattern must contain {atm_id}")
	}
	if _, err := alert.ParseOperator(c.Operator); err != nil {
		return fmt.Errorf("dashboard.operator: %w", err)
	}
	for _, id := range c.AllowedATMs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("dashboard.allowed_atms contains an empty id")
		}
	}
	for _, r := range c.Regressors {
		for d := range r.Dates {
			if _, err := model.ParseDate(d); err != nil {
				return fmt.Errorf("dashboard.regressors %s: %w", r.Name, err)
			}
		}
	}
	if c.RefreshInterval < 0 || c.LoadTimeout < 0 {
		return fmt.Errorf("dashboard durations must not be negative")
	}
	return nil
}

// FeatureSchema builds the regressor schema declared by the config.
func (c DashboardConfig) FeatureSchema() (*prediction.FeatureSchema, error) {
	specs := make([]prediction.RegressorSpec, 0, len(c.Regressors))
	for _, r := range c.Regressors {
		spec := prediction.RegressorSpec{Name: r.Name, Default: r.Default}
		if len(r.Dates) > 0 {
			spec.Calendar = prediction.DateCalendar(r.Dates)
		}
		specs = append(specs, spec)
	}
	return prediction.NewFeatureSchema(specs...)
}

// Policy returns the configured stocking policy.
func (c DashboardConfig) Policy() (alert.ThresholdPolicy, error) {
	op, err := alert.ParseOperator(c.Operator)
	if err != nil {
		return alert.ThresholdPolicy{}, err
	}
	return alert.ThresholdPolicy{Threshold: c.Threshold, Operator: op}, nil
}
