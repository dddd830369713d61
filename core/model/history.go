package model

import "time"

// DateLayout is the calendar date format used in artifacts, CSV feeds and
// API payloads.
const DateLayout = "2006-01-02"

// HistoricalRecord is one observed daily demand value for an ATM.
type HistoricalRecord struct {
	ATMID  string    `json:"atm_id"`
	Date   time.Time `json:"date"`
	Demand float64   `json:"demand"`
}

// Day aligns t to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
