package entitlement

import "time"

// WeekStart returns the most recent Sunday 00:00 at or before t, in t's location.
// Quota windows are calendar weeks in the location the resolver is configured with.
func WeekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// NextWeekStart returns when the quota window containing t resets.
func NextWeekStart(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 7)
}
