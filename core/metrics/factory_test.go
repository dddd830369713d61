package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilianp07/atmcast/core/factory"
	metrics "github.com/kilianp07/atmcast/core/metrics"
	"github.com/kilianp07/atmcast/core/model"
	_ "github.com/kilianp07/atmcast/infra/metrics"
)

/*
TestMetricsFactory_Builtins verifies the sinks registered by infra/metrics.

	Cases:
	- nop, prometheus and influx are registered
	- the prometheus sink records every optional event
	- unknown type returns error
*/
func TestMetricsFactory_Builtins(t *testing.T) {
	types := metrics.SinkTypes()
	want := []string{"influx", "nop", "prometheus"}
	if len(types) != len(want) {
		t.Fatalf("unexpected sink types %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("unexpected sink types %v", types)
		}
	}

	s, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "prometheus"}})
	if err != nil {
		t.Fatalf("create prometheus: %v", err)
	}
	if _, ok := s.(metrics.VerdictRecorder); !ok {
		t.Fatalf("prometheus sink does not record verdicts: %T", s)
	}
	if _, ok := s.(metrics.ModelLoadRecorder); !ok {
		t.Fatalf("prometheus sink does not record model loads: %T", s)
	}
	if _, ok := s.(metrics.HeatmapRecorder); !ok {
		t.Fatalf("prometheus sink does not record heatmaps: %T", s)
	}
	if _, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

/*
TestNewMetricsSink_Multi validates NewMetricsSink behavior with zero, one, and multiple configs.
Cases:
  - no config -> NopSink
  - two configs -> MultiSink forwarding model loads to both
*/
func TestNewMetricsSink_Multi(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("create nop default: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}

	cfgs := []factory.ModuleConfig{{Type: "nop"}, {Type: "prometheus"}}
	s, err = metrics.NewMetricsSink(cfgs)
	if err != nil {
		t.Fatalf("create multi: %v", err)
	}
	m, ok := s.(*metrics.MultiSink)
	if !ok {
		t.Fatalf("expected MultiSink, got %T", s)
	}
	if len(m.Sinks) != 2 {
		t.Fatalf("expected 2 sinks, got %d", len(m.Sinks))
	}
	ev := metrics.ForecastEvent{ATMID: "ATM_001", Status: "ok", Window: model.ForecastWindow{ATMID: "ATM_001"}, Time: time.Now()}
	if err := m.RecordForecast(ev); err != nil {
		t.Fatalf("record forecast: %v", err)
	}
}

// An unhealthy InfluxDB endpoint degrades to a NopSink instead of failing
// startup.
func TestNewMetricsSink_InfluxFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := metrics.NewMetricsSink([]factory.ModuleConfig{{
		Type: "influx",
		Conf: map[string]any{"url": srv.URL, "token": "t", "org": "o", "bucket": "b"},
	}})
	if err != nil {
		t.Fatalf("create influx: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink fallback, got %T", s)
	}
}
