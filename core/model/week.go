package model

import "time"

// Week is the canonical day ordering used for weekly seasonality and the
// fleet heatmap.
var Week = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayIndex returns the position of t's weekday in Week (Monday = 0).
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
