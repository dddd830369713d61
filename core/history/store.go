// Package history defines the read-only feed of observed ATM demand.
package history

import (
	"context"
	"time"

	"github.com/kilianp07/atmcast/core/model"
)

// Query restricts the records returned by a Source. Zero values mean no
// restriction.
type Query struct {
	ATMID string
	Start time.Time
	End   time.Time
}

// Match reports whether r satisfies q. Bounds are inclusive days.
func (q Query) Match(r model.HistoricalRecord) bool {
	if q.ATMID != "" && r.ATMID != q.ATMID {
		return false
	}
	d := model.Day(r.Date)
	if !q.Start.IsZero() && d.Before(model.Day(q.Start)) {
		return false
	}
	if !q.End.IsZero() && d.After(model.Day(q.End)) {
		return false
	}
	return true
}

// Source returns historical demand records ordered by ATM then date.
type Source interface {
	Records(ctx context.Context, q Query) ([]model.HistoricalRecord, error)
}

// Store is a Source that can also ingest records.
type Store interface {
	Source
	Add(ctx context.Context, recs ...model.HistoricalRecord) error
}
