package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/atmcast/core/model"
)

// MemoryStore keeps records in memory for tests or small feeds. A second
// record for the same ATM and day replaces the first.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[time.Time]model.HistoricalRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[time.Time]model.HistoricalRecord{}}
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, recs ...model.HistoricalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		if s.data[r.ATMID] == nil {
			s.data[r.ATMID] = map[time.Time]model.HistoricalRecord{}
		}
		r.Date = model.Day(r.Date)
		s.data[r.ATMID][r.Date] = r
	}
	return nil
}

// Records implements Source.
func (s *MemoryStore) Records(_ context.Context, q Query) ([]model.HistoricalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.HistoricalRecord
	for _, days := range s.data {
		for _, r := range days {
			if q.Match(r) {
				res = append(res, r)
			}
		}
	}
	Sort(res)
	return res, nil
}

// Sort orders records by ATM then date.
func Sort(recs []model.HistoricalRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].ATMID != recs[j].ATMID {
			return recs[i].ATMID < recs[j].ATMID
		}
		return recs[i].Date.Before(recs[j].Date)
	})
}
