package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/atmcast/core/metrics"
	"github.com/kilianp07/atmcast/infra/logger"
)

// InfluxConfig holds the InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes dashboard events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordForecast writes one forecast_refresh point.
func (s *InfluxSink) RecordForecast(ev coremetrics.ForecastEvent) error {
	future := ev.Window.Future()
	maxYhat := 0.0
	for _, pt := range future {
		maxYhat = math.Max(maxYhat, pt.Yhat)
	}
	p := write.NewPointWithMeasurement("forecast_refresh").
		AddTag("atm_id", ev.ATMID).
		AddTag("status", ev.Status).
		AddTag("kind", ev.Kind).
		AddTag("component", "dashboard").
		AddField("horizon", ev.Horizon).
		AddField("points", len(future)).
		AddField("max_yhat", round3(maxYhat)).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordVerdict writes one alert_verdict point.
func (s *InfluxSink) RecordVerdict(ev coremetrics.VerdictEvent) error {
	v := ev.Verdict
	p := write.NewPointWithMeasurement("alert_verdict").
		AddTag("atm_id", v.ATMID).
		AddTag("is_alert", strconv.FormatBool(v.IsAlert)).
		AddTag("operator", v.Operator).
		AddField("max_predicted", round3(v.MaxPredicted)).
		AddField("threshold", round3(v.Threshold)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordModelLoad writes one model_load point.
func (s *InfluxSink) RecordModelLoad(ev coremetrics.ModelLoadEvent) error {
	p := write.NewPointWithMeasurement("model_load").
		AddTag("atm_id", ev.ATMID).
		AddTag("outcome", ev.Outcome).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordHeatmap writes one fleet_heatmap point.
func (s *InfluxSink) RecordHeatmap(ev coremetrics.HeatmapEvent) error {
	p := write.NewPointWithMeasurement("fleet_heatmap").
		AddTag("component", "fleet").
		AddField("atms", ev.ATMs).
		AddField("records", ev.Records).
		AddField("empty_cells", ev.EmptyCells).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
