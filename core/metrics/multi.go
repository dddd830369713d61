package metrics

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordForecast forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordForecast(ev ForecastEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordForecast(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordVerdict forwards verdicts to sinks that support them.
func (m *MultiSink) RecordVerdict(ev VerdictEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(VerdictRecorder); ok {
			if err := rec.RecordVerdict(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordModelLoad forwards model load events.
func (m *MultiSink) RecordModelLoad(ev ModelLoadEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ModelLoadRecorder); ok {
			if err := rec.RecordModelLoad(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordHeatmap forwards heatmap events.
func (m *MultiSink) RecordHeatmap(ev HeatmapEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(HeatmapRecorder); ok {
			if err := rec.RecordHeatmap(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
