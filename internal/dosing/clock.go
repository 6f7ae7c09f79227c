// Package dosing computes when doses are due, which dose a confirmation
// applies to, and how well a schedule was followed. It performs no I/O:
// callers load users, schedules and doses and pass them in.
package dosing

import "time"

// StartOfDay returns local midnight of t's civil date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns [local midnight, next local midnight) of now's civil
// date in loc, as UTC instants.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	from := StartOfDay(now, loc)
	to := nextDay(from)
	return from.UTC(), to.UTC()
}

// nextDay returns local midnight of the civil date after day.
func nextDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
