// Package streak computes practice streaks from completion times.
package streak

import (
	"sort"
	"time"
)

// DateLayout is the calendar-day key used for daily stats and streaks.
const DateLayout = "2006-01-02"

// Streaks holds the current and longest runs of consecutive active days.
type Streaks struct {
	Current int `json:"current_streak"`
	Longest int `json:"longest_streak"`
}

// DateKey returns t's calendar day in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

func addDays(key string, days int, loc *time.Location) string {
	d, err := time.ParseInLocation(DateLayout, key, loc)
	if err != nil {
		return ""
	}
	return d.AddDate(0, 0, days).Format(DateLayout)
}

// Compute returns the streaks for the given completion times, bucketed into
// calendar days in now's location. A day is active if it has at least one
// completion. The current streak only survives while the most recent active
// day is today or yesterday.
func Compute(completions []time.Time, now time.Time) Streaks {
	loc := now.Location()
	active := make(map[string]bool, len(completions))
	for _, c := range completions {
		if c.IsZero() {
			continue
		}
		active[DateKey(c, loc)] = true
	}
	if len(active) == 0 {
		return Streaks{}
	}

	days := make([]string, 0, len(active))
	for d := range active {
		days = append(days, d)
	}
	sort.Strings(days)

	today := DateKey(now, loc)
	yesterday := addDays(today, -1, loc)
	last := days[len(days)-1]

	var s Streaks
	if last == today || last == yesterday {
		for d := last; active[d]; d = addDays(d, -1, loc) {
			s.Current++
		}
	}

	s.Longest = 1
	run := 1
	for i := 1; i < len(days); i++ {
		if days[i] == addDays(days[i-1], 1, loc) {
			run++
			if run > s.Longest {
				s.Longest = run
			}
		} else {
			run = 1
		}
	}
	return s
}
