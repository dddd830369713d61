package fleet

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/atmcast/core/model"
)

// fullWeek returns one record per weekday starting Monday 2024-01-01.
func fullWeek(atm string, base float64) []model.HistoricalRecord {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.HistoricalRecord, 7)
	for i := range out {
		out[i] = model.HistoricalRecord{ATMID: atm, Date: start.AddDate(0, 0, i), Demand: base + float64(i)}
	}
	return out
}

func TestWeeklyAverage_FullWeek(t *testing.T) {
	recs := append(fullWeek("ATM_B", 200), fullWeek("ATM_A", 100)...)
	h := WeeklyAverage(recs)

	require.Len(t, h.Rows, 2)
	assert.Equal(t, "ATM_A", h.Rows[0].ATMID)
	assert.Equal(t, "ATM_B", h.Rows[1].ATMID)
	assert.Equal(t, "Monday", h.Days[0])
	assert.Equal(t, "Sunday", h.Days[6])
	assert.Zero(t, h.EmptyCells())
	assert.Len(t, h.Averages(), 14)

	c, ok := h.Lookup("ATM_A", time.Sunday)
	require.True(t, ok)
	assert.Equal(t, 106.0, c.Value)
	assert.Equal(t, 1, c.Count)
}

func TestWeeklyAverage_MissingDayIsNoData(t *testing.T) {
	recs := fullWeek("ATM_A", 100)
	recs = append(recs[:1], recs[2:]...) // drop Tuesday
	h := WeeklyAverage(recs)

	c, ok := h.Lookup("ATM_A", time.Tuesday)
	require.True(t, ok)
	assert.False(t, c.HasData)
	assert.Equal(t, 1, h.EmptyCells())
	_, present := h.Averages()[Key{ATMID: "ATM_A", Weekday: time.Tuesday}]
	assert.False(t, present)

	b, err := json.Marshal(h.Rows[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"atm_id":"ATM_A","cells":[100,null,102,103,104,105,106]}`, string(b))
}

func TestWeeklyAverage_Mean(t *testing.T) {
	mon := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []model.HistoricalRecord{
		{ATMID: "A", Date: mon, Demand: 10},
		{ATMID: "A", Date: mon.AddDate(0, 0, 7), Demand: 20},
		{ATMID: "A", Date: mon.AddDate(0, 0, 14), Demand: 60},
		{ATMID: "A", Date: mon.AddDate(0, 0, 21), Demand: math.NaN()},
	}
	h := WeeklyAverage(recs)
	c, _ := h.Lookup("A", time.Monday)
	assert.Equal(t, 30.0, c.Value)
	assert.Equal(t, 3, c.Count)
	assert.Equal(t, 6, h.EmptyCells())
}

func TestWeeklyAverage_Empty(t *testing.T) {
	h := WeeklyAverage(nil)
	assert.Empty(t, h.Rows)
	_, ok := h.Lookup("A", time.Monday)
	assert.False(t, ok)
}
