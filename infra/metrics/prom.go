package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/atmcast/core/metrics"
)

// PromSink exposes dashboard activity as Prometheus metrics.
type PromSink struct {
	refreshes    *prometheus.CounterVec
	refreshTime  *prometheus.HistogramVec
	maxPredicted *prometheus.GaugeVec
	threshold    *prometheus.GaugeVec
	alert        *prometheus.GaugeVec
	loads        *prometheus.CounterVec
	loadTime     *prometheus.HistogramVec
	emptyCells   prometheus.Gauge
	records      prometheus.Gauge
}

var (
	_ coremetrics.MetricsSink       = (*PromSink)(nil)
	_ coremetrics.VerdictRecorder   = (*PromSink)(nil)
	_ coremetrics.ModelLoadRecorder = (*PromSink)(nil)
	_ coremetrics.HeatmapRecorder   = (*PromSink)(nil)
)

// NewPromSink registers the dashboard metrics on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on reg. Collectors already
// registered by a previous sink are reused. A nil registerer defaults to the
// global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.refreshes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atm_forecast_refresh_total",
		Help: "Dashboard refreshes by ATM, status and error kind",
	}, []string{"atm_id", "status", "kind"})); err != nil {
		return nil, err
	}
	if s.refreshTime, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atm_forecast_refresh_duration_seconds",
		Help:    "Time spent producing a dashboard snapshot",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if s.maxPredicted, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "atm_forecast_max_predicted",
		Help: "Highest predicted demand over the forecast horizon",
	}, []string{"atm_id"})); err != nil {
		return nil, err
	}
	if s.threshold, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "atm_stocking_threshold",
		Help: "Configured stocking threshold",
	}, []string{"atm_id"})); err != nil {
		return nil, err
	}
	if s.alert, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "atm_stocking_alert",
		Help: "1 when the forecast exceeds the stocking threshold",
	}, []string{"atm_id"})); err != nil {
		return nil, err
	}
	if s.loads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atm_model_load_total",
		Help: "Model artifact loads by outcome",
	}, []string{"atm_id", "outcome"})); err != nil {
		return nil, err
	}
	if s.loadTime, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atm_model_load_duration_seconds",
		Help:    "Time spent deserializing model artifacts",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.emptyCells, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atm_heatmap_empty_cells",
		Help: "Heatmap cells without historical data",
	})); err != nil {
		return nil, err
	}
	if s.records, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atm_heatmap_records",
		Help: "Historical records used for the last heatmap",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// RecordForecast counts the refresh and observes its duration.
func (s *PromSink) RecordForecast(ev coremetrics.ForecastEvent) error {
	s.refreshes.WithLabelValues(ev.ATMID, ev.Status, ev.Kind).Inc()
	s.refreshTime.WithLabelValues(ev.Status).Observe(ev.Duration.Seconds())
	return nil
}

// RecordVerdict publishes the latest verdict gauges.
func (s *PromSink) RecordVerdict(ev coremetrics.VerdictEvent) error {
	v := ev.Verdict
	s.maxPredicted.WithLabelValues(v.ATMID).Set(v.MaxPredicted)
	s.threshold.WithLabelValues(v.ATMID).Set(v.Threshold)
	alert := 0.0
	if v.IsAlert {
		alert = 1
	}
	s.alert.WithLabelValues(v.ATMID).Set(alert)
	return nil
}

// RecordModelLoad counts the load and observes its duration.
func (s *PromSink) RecordModelLoad(ev coremetrics.ModelLoadEvent) error {
	s.loads.WithLabelValues(ev.ATMID, ev.Outcome).Inc()
	s.loadTime.WithLabelValues(ev.Outcome).Observe(ev.Duration.Seconds())
	return nil
}

// RecordHeatmap sets the heatmap gauges.
func (s *PromSink) RecordHeatmap(ev coremetrics.HeatmapEvent) error {
	s.emptyCells.Set(float64(ev.EmptyCells))
	s.records.Set(float64(ev.Records))
	return nil
}
