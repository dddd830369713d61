package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	apidash "github.com/kilianp07/atmcast/api/dashboard"
	"github.com/kilianp07/atmcast/config"
	"github.com/kilianp07/atmcast/core/dashboard"
	corehistory "github.com/kilianp07/atmcast/core/history"
	coremetrics "github.com/kilianp07/atmcast/core/metrics"
	"github.com/kilianp07/atmcast/core/modelstore"
	coremon "github.com/kilianp07/atmcast/core/monitoring"
	"github.com/kilianp07/atmcast/core/prediction"
	"github.com/kilianp07/atmcast/infra/audit"
	"github.com/kilianp07/atmcast/infra/history"
	"github.com/kilianp07/atmcast/infra/logger"
	"github.com/kilianp07/atmcast/infra/metrics"
	"github.com/kilianp07/atmcast/infra/monitoring"
	"github.com/kilianp07/atmcast/infra/mqtt"
	"github.com/kilianp07/atmcast/internal/eventbus"
)

// Service wires the dashboard pipeline to its feeds, sinks and HTTP API.
type Service struct {
	Pipeline *dashboard.Pipeline
	Models   *modelstore.Store

	cfg      *config.Config
	bus      *eventbus.Bus[dashboard.Snapshot]
	audit    *audit.Log
	notifier *mqtt.AlertNotifier
	closers  []func() error
	log      logger.Logger
}

// New creates a Service from the configuration. Network clients are only
// created for the sections that are enabled.
func New(cfg *config.Config) (*Service, error) {
	logger.SetLevel(cfg.Log.Level)
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	svc := &Service{cfg: cfg, log: logg, bus: eventbus.New[dashboard.Snapshot](eventbus.DefaultBuffer)}
	if err := svc.build(sink); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) build(sink coremetrics.MetricsSink) error {
	dc := s.cfg.Dashboard

	storeOpts := []modelstore.Option{
		modelstore.WithTimeout(dc.LoadTimeout),
		modelstore.WithLogger(logger.New("modelstore")),
	}
	if rec, ok := sink.(coremetrics.ModelLoadRecorder); ok {
		storeOpts = append(storeOpts, modelstore.WithRecorder(rec))
	}
	s.Models = modelstore.New(modelstore.FileLoader{Dir: dc.ModelDir, Pattern: dc.ModelPattern}, storeOpts...)

	schema, err := dc.FeatureSchema()
	if err != nil {
		return fmt.Errorf("feature schema: %w", err)
	}
	policy, err := dc.Policy()
	if err != nil {
		return fmt.Errorf("alert policy: %w", err)
	}
	src, err := s.historySource()
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	opts := []dashboard.Option{
		dashboard.WithMetrics(sink),
		dashboard.WithBus(s.bus),
		dashboard.WithLogger(logger.New("dashboard")),
	}
	if src != nil {
		opts = append(opts, dashboard.WithHistory(src))
	}
	s.Pipeline, err = dashboard.NewPipeline(dashboard.Config{
		ATMID:        dc.ATMID,
		AllowedATMs:  dc.AllowedATMs,
		Horizon:      dc.Horizon,
		MaxHorizon:   dc.MaxHorizon,
		DemoFallback: dc.DemoFallback,
	}, s.Models, prediction.NewService(schema, logger.New("prediction")), policy, opts...)
	if err != nil {
		return err
	}

	if s.cfg.Audit.Enabled {
		s.audit, err = audit.New(s.cfg.Audit)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		s.closers = append(s.closers, s.audit.Close)
	}
	if s.cfg.MQTT.Enabled {
		s.notifier, err = mqtt.NewAlertNotifier(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt notifier: %w", err)
		}
		s.closers = append(s.closers, func() error { s.notifier.Close(); return nil })
	}
	if c, ok := sink.(interface{ Close() }); ok {
		s.closers = append(s.closers, func() error { c.Close(); return nil })
	}
	return nil
}

func (s *Service) historySource() (corehistory.Source, error) {
	hc := s.cfg.History
	switch hc.Backend {
	case "csv":
		return history.CSVSource{Path: hc.Path}, nil
	case "sqlite":
		st, err := history.NewSQLiteStore(hc.Path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st.Close)
		if hc.Import != "" {
			if err := importCSV(st, hc.Import); err != nil {
				return nil, fmt.Errorf("import %s: %w", hc.Import, err)
			}
		}
		return st, nil
	}
	return nil, nil
}

func importCSV(st corehistory.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	ctx := context.Background()
	recs, err := history.ReadCSV(ctx, f)
	if err != nil {
		return err
	}
	return st.Add(ctx, recs...)
}

// Handler returns the dashboard HTTP API with middleware applied.
func (s *Service) Handler() http.Handler {
	opts := apidash.Options{Token: s.cfg.HTTP.Token}
	if s.audit != nil {
		opts.Audit = s.audit
	}
	if s.cfg.Metrics.Port == "" {
		opts.Metrics = metrics.Handler()
	}
	return apidash.Wrap(apidash.NewRouter(s.Pipeline, opts), logger.Writer(), s.cfg.HTTP.AllowedOrigins)
}

// Run starts the background consumers and serves HTTP until ctx is
// canceled.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	if s.audit != nil {
		events := s.bus.Subscribe()
		wg.Add(1)
		go func() { defer wg.Done(); s.audit.Run(ctx, events) }()
	}
	if s.notifier != nil {
		events := s.bus.Subscribe()
		wg.Add(1)
		go func() { defer wg.Done(); s.notifier.Run(ctx, events) }()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		dashboard.NewRefresher(s.Pipeline, s.cfg.Dashboard.RefreshInterval, logger.New("refresher")).Run(ctx)
	}()
	if port := s.cfg.Metrics.Port; port != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, port); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("dashboard API listening on %s for %s", srv.Addr, s.cfg.Dashboard.ATMID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		s.log.Errorf("http shutdown: %v", serr)
	}
	s.bus.Close()
	wg.Wait()
	return err
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
