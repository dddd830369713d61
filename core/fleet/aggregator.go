// Package fleet computes the fleet-wide weekly demand heatmap from
// historical observations.
package fleet

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/atmcast/core/model"
)

// Key identifies one heatmap cell.
type Key struct {
	ATMID   string
	Weekday time.Weekday
}

// Cell is the average demand for one ATM and weekday. Cells without
// observations have HasData false and encode as JSON null.
type Cell struct {
	Value   float64
	Count   int
	HasData bool
}

// MarshalJSON encodes the average, or null when there is no data.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.HasData {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// Row holds the seven cells of one ATM in canonical week order.
type Row struct {
	ATMID string  `json:"atm_id"`
	Cells [7]Cell `json:"cells"`
}

// Heatmap is the per-ATM, per-weekday average demand.
type Heatmap struct {
	Days [7]string `json:"days"`
	Rows []Row     `json:"rows"`
}

// Lookup returns the cell for atmID and weekday.
func (h Heatmap) Lookup(atmID string, wd time.Weekday) (Cell, bool) {
	for _, r := range h.Rows {
		if r.ATMID == atmID {
			return r.Cells[(int(wd)+6)%7], true
		}
	}
	return Cell{}, false
}

// Averages returns the populated cells as a mapping. Cells without data are
// absent from the map.
func (h Heatmap) Averages() map[Key]float64 {
	out := map[Key]float64{}
	for _, r := range h.Rows {
		for i, c := range r.Cells {
			if c.HasData {
				out[Key{ATMID: r.ATMID, Weekday: model.Week[i]}] = c.Value
			}
		}
	}
	return out
}

// EmptyCells counts cells without data.
func (h Heatmap) EmptyCells() int {
	n := 0
	for _, r := range h.Rows {
		for _, c := range r.Cells {
			if !c.HasData {
				n++
			}
		}
	}
	return n
}

// WeeklyAverage computes the arithmetic mean demand per ATM and weekday.
// Rows are sorted by ATM identifier, columns follow Monday..Sunday.
// Non-finite demand values are ignored.
func WeeklyAverage(records []model.HistoricalRecord) Heatmap {
	values := map[string]*[7][]float64{}
	for _, r := range records {
		if math.IsNaN(r.Demand) || math.IsInf(r.Demand, 0) {
			continue
		}
		v, ok := values[r.ATMID]
		if !ok {
			v = &[7][]float64{}
			values[r.ATMID] = v
		}
		i := model.WeekdayIndex(r.Date)
		v[i] = append(v[i], r.Demand)
	}

	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := Heatmap{Rows: make([]Row, 0, len(ids))}
	for i, wd := range model.Week {
		h.Days[i] = wd.String()
	}
	for _, id := range ids {
		row := Row{ATMID: id}
		for i, xs := range values[id] {
			if len(xs) == 0 {
				continue
			}
			row.Cells[i] = Cell{Value: stat.Mean(xs, nil), Count: len(xs), HasData: true}
		}
		h.Rows = append(h.Rows, row)
	}
	return h
}
