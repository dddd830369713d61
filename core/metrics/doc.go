// Package metrics defines the sinks dashboard refreshes report to. Forecast,
// verdict and model-load events are recorded by implementations in
// infra/metrics (Prometheus, InfluxDB) and can be combined with NewMultiSink.
// NewMetricsSink builds the configured set through the factory registry and
// returns a MultiSink automatically when several sinks are configured.
package metrics
