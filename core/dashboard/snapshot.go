// Package dashboard orchestrates one refresh of the forecast dashboard:
// load the model, forecast, evaluate the stocking policy and report the
// outcome with an explicit status the presentation layer must display.
package dashboard

import (
	"time"

	"github.com/kilianp07/atmcast/core/fleet"
	"github.com/kilianp07/atmcast/core/model"
)

// Status labels the provenance of the numbers in a snapshot.
type Status string

const (
	// StatusOK means the window comes from the trained model.
	StatusOK Status = "ok"
	// StatusDemo means the window is synthetic demo data.
	StatusDemo Status = "demo"
	// StatusUnavailable means no forecast could be produced.
	StatusUnavailable Status = "unavailable"
)

// Snapshot is the result of one dashboard refresh.
type Snapshot struct {
	ID      string               `json:"id"`
	ATMID   string               `json:"atm_id"`
	Status  Status               `json:"status"`
	Horizon int                  `json:"horizon"`
	Window  model.ForecastWindow `json:"forecast"`
	// Verdict is only set for StatusOK. Demo data is never evaluated.
	Verdict     *model.AlertVerdict `json:"verdict,omitempty"`
	Diagnostic  string              `json:"diagnostic,omitempty"`
	ErrorKind   string              `json:"error_kind,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Degraded reports whether the snapshot does not carry a real forecast.
func (s Snapshot) Degraded() bool { return s.Status != StatusOK }

// HeatmapSnapshot wraps the fleet heatmap with its status.
type HeatmapSnapshot struct {
	Status      Status        `json:"status"`
	Diagnostic  string        `json:"diagnostic,omitempty"`
	Heatmap     fleet.Heatmap `json:"heatmap"`
	Records     int           `json:"records"`
	GeneratedAt time.Time     `json:"generated_at"`
}
