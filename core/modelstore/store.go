// Package modelstore caches fitted forecasting models per ATM. A model is
// deserialized at most once per identifier for the life of the process; an
// explicit Reload or Invalidate is the only way to pick up a retrained
// artifact.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kilianp07/atmcast/core/logger"
	"github.com/kilianp07/atmcast/core/metrics"
	"github.com/kilianp07/atmcast/core/prediction"
)

// Loader resolves an ATM identifier to a freshly deserialized model.
type Loader interface {
	Load(ctx context.Context, atmID string) (prediction.Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, atmID string) (prediction.Model, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, atmID string) (prediction.Model, error) {
	return f(ctx, atmID)
}

// Store is a concurrency-safe, per-ATM model cache. Loads and reloads of the
// same identifier share one coalescing key, so at most one deserialization
// per ATM runs at a time; cached models are shared read-only with every
// caller.
type Store struct {
	loader  Loader
	timeout time.Duration
	log     logger.Logger
	rec     metrics.ModelLoadRecorder

	mu     sync.RWMutex
	models map[string]loaded
	group  singleflight.Group

	// gens is bumped by Reload and Invalidate. A deserialization started
	// under an older generation never replaces the cached entry.
	gens map[string]uint64
}

type loaded struct {
	m   prediction.Model
	gen uint64
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds each deserialization. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(s *Store) { s.timeout = d } }

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option { return func(s *Store) { s.log = l } }

// WithRecorder reports every load attempt to rec.
func WithRecorder(rec metrics.ModelLoadRecorder) Option { return func(s *Store) { s.rec = rec } }

// New returns an empty Store backed by loader.
func New(loader Loader, opts ...Option) *Store {
	s := &Store{
		loader: loader,
		log:    logger.Nop{},
		rec:    metrics.NopSink{},
		models: make(map[string]loaded),
		gens:   make(map[string]uint64),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the cached model for atmID, deserializing it on first use.
// Failures are never cached. A caller whose ctx ends stops waiting with
// ctx.Err(); the shared deserialization carries on for the other callers.
func (s *Store) Load(ctx context.Context, atmID string) (prediction.Model, error) {
	if m, ok := s.cached(atmID); ok {
		return m, nil
	}
	r, err := s.do(ctx, atmID, func() (loaded, error) {
		s.mu.RLock()
		e, ok := s.models[atmID]
		s.mu.RUnlock()
		if ok {
			return e, nil
		}
		return s.fetch(ctx, atmID)
	})
	if err != nil {
		return nil, err
	}
	return r.m, nil
}

// Reload deserializes the artifact again and replaces the cached entry on
// success. On failure the previous entry, if any, stays in place. A load
// already in flight when Reload is called cannot satisfy it.
func (s *Store) Reload(ctx context.Context, atmID string) (prediction.Model, error) {
	want := s.bump(atmID)
	for {
		r, err := s.do(ctx, atmID, func() (loaded, error) {
			return s.fetch(ctx, atmID)
		})
		if r.gen < want {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			s.log.Debugf("reload of %s joined an older load, retrying", atmID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return r.m, nil
	}
}

// Invalidate drops the cached model for atmID. Loads already in flight do
// not repopulate it.
func (s *Store) Invalidate(atmID string) {
	s.mu.Lock()
	delete(s.models, atmID)
	s.gens[atmID]++
	s.mu.Unlock()
}

// Cached lists the identifiers currently held, sorted.
func (s *Store) Cached() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.models))
	for id := range s.models {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) cached(atmID string) (prediction.Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.models[atmID]
	return e.m, ok
}

func (s *Store) bump(atmID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[atmID]++
	return s.gens[atmID]
}

func (s *Store) do(ctx context.Context, atmID string, fn func() (loaded, error)) (loaded, error) {
	ch := s.group.DoChan(atmID, func() (any, error) { return fn() })
	select {
	case <-ctx.Done():
		return loaded{}, ctx.Err()
	case r := <-ch:
		if r.Shared {
			s.log.Debugf("model load for %s coalesced", atmID)
		}
		l, _ := r.Val.(loaded)
		return l, r.Err
	}
}

// fetch runs detached from the caller's cancellation since other callers may
// be waiting on the same result. Only the store timeout bounds it.
func (s *Store) fetch(ctx context.Context, atmID string) (loaded, error) {
	s.mu.RLock()
	gen := s.gens[atmID]
	s.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	m, err := s.loader.Load(ctx, atmID)
	if err == nil && m.ATMID() != atmID {
		err = fmt.Errorf("%w: artifact trained for %q, requested %q", prediction.ErrModelCorrupt, m.ATMID(), atmID)
	}
	if err != nil && !errors.Is(err, prediction.ErrModelNotFound) && !errors.Is(err, prediction.ErrModelCorrupt) &&
		!errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", prediction.ErrModelCorrupt, err)
	}
	if rerr := s.rec.RecordModelLoad(metrics.ModelLoadEvent{
		ATMID:    atmID,
		Outcome:  prediction.Kind(err),
		Duration: time.Since(start),
		Time:     start,
	}); rerr != nil {
		s.log.Warnf("record model load: %v", rerr)
	}
	if err != nil {
		s.log.Errorf("load model %s: %v", atmID, err)
		return loaded{gen: gen}, err
	}

	s.mu.Lock()
	current := s.gens[atmID] == gen
	if current {
		s.models[atmID] = loaded{m: m, gen: gen}
	}
	s.mu.Unlock()
	if current {
		s.log.Infof("model %s loaded in %s", atmID, time.Since(start))
	} else {
		s.log.Debugf("model %s superseded while loading, not cached", atmID)
	}
	return loaded{m: m, gen: gen}, nil
}
