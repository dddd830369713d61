package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/atmcast/core/alert"
	"github.com/kilianp07/atmcast/core/fleet"
	"github.com/kilianp07/atmcast/core/history"
	"github.com/kilianp07/atmcast/core/logger"
	"github.com/kilianp07/atmcast/core/metrics"
	"github.com/kilianp07/atmcast/core/model"
	"github.com/kilianp07/atmcast/core/monitoring"
	"github.com/kilianp07/atmcast/core/prediction"
	"github.com/kilianp07/atmcast/internal/eventbus"
)

var (
	// ErrUnknownATM is returned for an ATM the dashboard is not bound to.
	ErrUnknownATM = errors.New("unknown atm")
	// ErrInvalidHorizon is returned for a horizon outside [1, MaxHorizon].
	ErrInvalidHorizon = errors.New("invalid horizon")
)

// DefaultHorizon is used when neither the request nor the config set one.
const DefaultHorizon = 7

// Config binds the pipeline to its ATM and horizon limits.
type Config struct {
	ATMID       string
	AllowedATMs []string
	Horizon     int
	// MaxHorizon caps requested horizons. Zero means 365.
	MaxHorizon   int
	DemoFallback bool
}

// Request selects what a refresh computes. Zero values use the configured
// ATM and horizon.
type Request struct {
	ATMID          string
	Horizon        int
	IncludeHistory bool
}

// Models is the model cache used by the pipeline.
type Models interface {
	Load(ctx context.Context, atmID string) (prediction.Model, error)
	Reload(ctx context.Context, atmID string) (prediction.Model, error)
}

// Pipeline runs dashboard refreshes. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	allowed   map[string]struct{}
	models    Models
	forecasts *prediction.Service
	policy    alert.Policy
	history   history.Source
	sink      metrics.MetricsSink
	bus       *eventbus.Bus[Snapshot]
	log       logger.Logger
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHistory sets the historical feed used for the heatmap.
func WithHistory(src history.Source) Option { return func(p *Pipeline) { p.history = src } }

// WithMetrics sets the metrics sink.
func WithMetrics(s metrics.MetricsSink) Option { return func(p *Pipeline) { p.sink = s } }

// WithBus publishes every snapshot on bus.
func WithBus(bus *eventbus.Bus[Snapshot]) Option { return func(p *Pipeline) { p.bus = bus } }

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option { return func(p *Pipeline) { p.log = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// NewPipeline validates cfg and returns a Pipeline.
func NewPipeline(cfg Config, models Models, forecasts *prediction.Service, policy alert.Policy, opts ...Option) (*Pipeline, error) {
	if cfg.ATMID == "" {
		return nil, errors.New("dashboard: atm id is required")
	}
	if models == nil || forecasts == nil || policy == nil {
		return nil, errors.New("dashboard: models, forecast service and policy are required")
	}
	if cfg.Horizon == 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.MaxHorizon == 0 {
		cfg.MaxHorizon = 365
	}
	if cfg.Horizon < 1 || cfg.Horizon > cfg.MaxHorizon {
		return nil, fmt.Errorf("dashboard: %w: %d", ErrInvalidHorizon, cfg.Horizon)
	}
	p := &Pipeline{
		cfg:       cfg,
		allowed:   map[string]struct{}{cfg.ATMID: {}},
		models:    models,
		forecasts: forecasts,
		policy:    policy,
		sink:      metrics.NopSink{},
		log:       logger.Nop{},
		now:       time.Now,
	}
	for _, id := range cfg.AllowedATMs {
		p.allowed[id] = struct{}{}
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// ATMs lists the identifiers the pipeline serves, sorted.
func (p *Pipeline) ATMs() []string {
	out := make([]string, 0, len(p.allowed))
	for id := range p.allowed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Pipeline) resolve(req Request) (string, int, error) {
	id := req.ATMID
	if id == "" {
		id = p.cfg.ATMID
	}
	if _, ok := p.allowed[id]; !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownATM, id)
	}
	h := req.Horizon
	if h == 0 {
		h = p.cfg.Horizon
	}
	if h < 1 || h > p.cfg.MaxHorizon {
		return "", 0, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidHorizon, h, p.cfg.MaxHorizon)
	}
	return id, h, nil
}

// Refresh loads the model, forecasts and evaluates the policy. Forecast
// failures do not return an error: they produce a degraded snapshot whose
// Status and Diagnostic explain what happened. Only invalid requests fail.
func (p *Pipeline) Refresh(ctx context.Context, req Request) (Snapshot, error) {
	id, horizon, err := p.resolve(req)
	if err != nil {
		return Snapshot{}, err
	}
	start := p.now()
	snap := Snapshot{
		ID:          uuid.NewString(),
		ATMID:       id,
		Horizon:     horizon,
		GeneratedAt: start.UTC(),
	}

	w, err := p.forecast(ctx, id, horizon, req.IncludeHistory)
	if err == nil {
		snap.Status = StatusOK
		snap.Window = w
		v := p.policy.Evaluate(w)
		snap.Verdict = &v
	} else {
		p.degrade(ctx, &snap, err)
	}

	p.record(snap, p.now().Sub(start))
	if p.bus != nil {
		p.bus.Publish(snap)
	}
	return snap, nil
}

func (p *Pipeline) forecast(ctx context.Context, id string, horizon int, includeHistory bool) (model.ForecastWindow, error) {
	m, err := p.models.Load(ctx, id)
	if err != nil {
		return model.ForecastWindow{}, err
	}
	return p.forecasts.Forecast(ctx, m, horizon, includeHistory)
}

// degrade fills snap after a failed forecast. A schema mismatch is a
// configuration defect and never falls back to demo data.
func (p *Pipeline) degrade(ctx context.Context, snap *Snapshot, cause error) {
	snap.ErrorKind = prediction.Kind(cause)
	snap.Diagnostic = diagnostic(snap.ATMID, cause)
	snap.Status = StatusUnavailable
	snap.Window = model.ForecastWindow{ATMID: snap.ATMID, Frequency: model.FrequencyDaily, Points: []model.ForecastPoint{}}

	p.log.Errorf("forecast for %s unavailable: %v", snap.ATMID, cause)
	monitoring.CaptureException(cause, map[string]string{
		"atm_id": snap.ATMID,
		"module": "dashboard",
		"kind":   snap.ErrorKind,
	})

	if !p.cfg.DemoFallback || errors.Is(cause, prediction.ErrSchemaMismatch) {
		return
	}
	demo := prediction.DemoModel{ATM: snap.ATMID, Last: model.Day(snap.GeneratedAt).AddDate(0, 0, -1)}
	w, err := p.forecasts.Forecast(ctx, demo, snap.Horizon, false)
	if err != nil {
		p.log.Warnf("demo forecast for %s: %v", snap.ATMID, err)
		return
	}
	snap.Status = StatusDemo
	snap.Window = w
	snap.Diagnostic += "; showing demo data"
}

func diagnostic(atmID string, err error) string {
	switch {
	case errors.Is(err, prediction.ErrModelNotFound):
		return fmt.Sprintf("no trained model for ATM %s", atmID)
	case errors.Is(err, prediction.ErrModelCorrupt):
		return fmt.Sprintf("model artifact for ATM %s is unreadable: %v", atmID, err)
	case errors.Is(err, prediction.ErrSchemaMismatch):
		return fmt.Sprintf("model for ATM %s needs inputs the dashboard does not supply: %v", atmID, err)
	}
	return fmt.Sprintf("forecast for ATM %s failed: %v", atmID, err)
}

func (p *Pipeline) record(snap Snapshot, d time.Duration) {
	kind := snap.ErrorKind
	if kind == "" {
		kind = prediction.Kind(nil)
	}
	if err := p.sink.RecordForecast(metrics.ForecastEvent{
		ATMID:    snap.ATMID,
		Status:   string(snap.Status),
		Kind:     kind,
		Horizon:  snap.Horizon,
		Window:   snap.Window,
		Duration: d,
		Time:     snap.GeneratedAt,
	}); err != nil {
		p.log.Warnf("record forecast: %v", err)
	}
	if snap.Verdict == nil {
		return
	}
	if vr, ok := p.sink.(metrics.VerdictRecorder); ok {
		if err := vr.RecordVerdict(metrics.VerdictEvent{Verdict: *snap.Verdict, Status: string(snap.Status), Time: snap.GeneratedAt}); err != nil {
			p.log.Warnf("record verdict: %v", err)
		}
	}
}

// Heatmap aggregates the historical feed. A missing or failing feed gives
// an unavailable snapshot with an empty heatmap.
func (p *Pipeline) Heatmap(ctx context.Context) HeatmapSnapshot {
	now := p.now().UTC()
	hs := HeatmapSnapshot{Status: StatusOK, GeneratedAt: now}
	if p.history == nil {
		hs.Status = StatusUnavailable
		hs.Diagnostic = "no historical data source configured"
		hs.Heatmap = fleet.WeeklyAverage(nil)
		return hs
	}
	recs, err := p.history.Records(ctx, history.Query{})
	if err != nil {
		p.log.Errorf("read history: %v", err)
		monitoring.CaptureException(err, map[string]string{"module": "heatmap"})
		hs.Status = StatusUnavailable
		hs.Diagnostic = fmt.Sprintf("historical data unavailable: %v", err)
		hs.Heatmap = fleet.WeeklyAverage(nil)
		return hs
	}
	hs.Heatmap = fleet.WeeklyAverage(recs)
	hs.Records = len(recs)
	if len(recs) == 0 {
		hs.Diagnostic = "no historical data"
	}
	if hr, ok := p.sink.(metrics.HeatmapRecorder); ok {
		if err := hr.RecordHeatmap(metrics.HeatmapEvent{
			ATMs:       len(hs.Heatmap.Rows),
			Records:    len(recs),
			EmptyCells: hs.Heatmap.EmptyCells(),
			Time:       now,
		}); err != nil {
			p.log.Warnf("record heatmap: %v", err)
		}
	}
	return hs
}

// ReloadModel re-reads the artifact for atmID, replacing the cached model
// only on success.
func (p *Pipeline) ReloadModel(ctx context.Context, atmID string) error {
	if _, ok := p.allowed[atmID]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownATM, atmID)
	}
	_, err := p.models.Reload(ctx, atmID)
	return err
}
