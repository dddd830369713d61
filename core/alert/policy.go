// Package alert classifies a forecast window against the cash stocking
// threshold of an ATM.
package alert

import (
	"fmt"
	"strings"

	"github.com/kilianp07/atmcast/core/model"
)

// Operator compares a predicted value with the threshold.
type Operator string

const (
	// OpGreater alerts when the prediction is strictly above the threshold.
	OpGreater Operator = "gt"
	// OpGreaterOrEqual alerts when the prediction reaches the threshold.
	OpGreaterOrEqual Operator = "gte"
)

// ParseOperator parses gt, >, gte or >=. Empty means gt.
func ParseOperator(s string) (Operator, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", "gt", ">":
		return OpGreater, nil
	case "gte", ">=":
		return OpGreaterOrEqual, nil
	}
	return "", fmt.Errorf("unknown alert operator %q", s)
}

// Exceeds reports whether v triggers the operator against threshold.
func (o Operator) Exceeds(v, threshold float64) bool {
	if o == OpGreaterOrEqual {
		return v >= threshold
	}
	return v > threshold
}

// Policy decides whether a forecast window requires restocking.
type Policy interface {
	Evaluate(w model.ForecastWindow) model.AlertVerdict
}

// ThresholdPolicy alerts when the highest future point estimate exceeds
// Threshold according to Operator.
type ThresholdPolicy struct {
	Threshold float64
	Operator  Operator
}

// NewThresholdPolicy returns the default strict policy.
func NewThresholdPolicy(threshold float64) ThresholdPolicy {
	return ThresholdPolicy{Threshold: threshold, Operator: OpGreater}
}

// Evaluate implements Policy. Historical fit values are ignored; an empty
// future window never alerts.
func (p ThresholdPolicy) Evaluate(w model.ForecastWindow) model.AlertVerdict {
	op := p.Operator
	if op == "" {
		op = OpGreater
	}
	v := model.AlertVerdict{ATMID: w.ATMID, Threshold: p.Threshold, Operator: string(op)}
	first := true
	for _, pt := range w.Points {
		if pt.Historical {
			continue
		}
		if first || pt.Yhat > v.MaxPredicted {
			v.MaxPredicted = pt.Yhat
			v.PeakDate = pt.Date
			first = false
		}
	}
	if first {
		return v
	}
	v.IsAlert = op.Exceeds(v.MaxPredicted, p.Threshold)
	return v
}

// Evaluate applies p to w.
func Evaluate(w model.ForecastWindow, p Policy) model.AlertVerdict {
	return p.Evaluate(w)
}
