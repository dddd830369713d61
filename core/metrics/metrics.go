package metrics

import (
	"time"

	"github.com/kilianp07/atmcast/core/model"
)

// ForecastEvent describes one forecast refresh.
type ForecastEvent struct {
	ATMID    string
	Status   string
	Kind     string
	Horizon  int
	Window   model.ForecastWindow
	Duration time.Duration
	Time     time.Time
}

// MetricsSink records forecast refreshes for observability purposes.
type MetricsSink interface {
	RecordForecast(ev ForecastEvent) error
}

// VerdictEvent carries the alert verdict computed for a refresh.
type VerdictEvent struct {
	Verdict model.AlertVerdict
	Status  string
	Time    time.Time
}

// VerdictRecorder records alert verdicts.
type VerdictRecorder interface {
	RecordVerdict(ev VerdictEvent) error
}

// ModelLoadEvent describes one artifact deserialization.
type ModelLoadEvent struct {
	ATMID    string
	Outcome  string
	Duration time.Duration
	Time     time.Time
}

// ModelLoadRecorder records model loads.
type ModelLoadRecorder interface {
	RecordModelLoad(ev ModelLoadEvent) error
}

// HeatmapEvent describes one heatmap computation.
type HeatmapEvent struct {
	ATMs       int
	Records    int
	EmptyCells int
	Time       time.Time
}

// HeatmapRecorder records heatmap computations.
type HeatmapRecorder interface {
	RecordHeatmap(ev HeatmapEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordForecast(ForecastEvent) error   { return nil }
func (NopSink) RecordVerdict(VerdictEvent) error     { return nil }
func (NopSink) RecordModelLoad(ModelLoadEvent) error { return nil }
func (NopSink) RecordHeatmap(HeatmapEvent) error     { return nil }
