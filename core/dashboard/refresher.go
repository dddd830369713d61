package dashboard

import (
	"context"
	"time"

	"github.com/kilianp07/atmcast/core/logger"
)

// Refresher periodically refreshes every served ATM, keeping the model
// cache warm and feeding the event bus.
type Refresher struct {
	p        *Pipeline
	interval time.Duration
	log      logger.Logger
}

// NewRefresher returns a Refresher running every interval.
func NewRefresher(p *Pipeline, interval time.Duration, log logger.Logger) *Refresher {
	if log == nil {
		log = logger.Nop{}
	}
	return &Refresher{p: p, interval: interval, log: log}
}

// Run refreshes immediately and then on every tick until ctx is canceled.
// A non-positive interval disables the loop.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		r.refreshAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context) {
	for _, id := range r.p.ATMs() {
		if ctx.Err() != nil {
			return
		}
		snap, err := r.p.Refresh(ctx, Request{ATMID: id})
		if err != nil {
			r.log.Errorf("refresh %s: %v", id, err)
			continue
		}
		r.log.Debugw("refreshed", map[string]any{"atm_id": id, "status": snap.Status})
	}
}
