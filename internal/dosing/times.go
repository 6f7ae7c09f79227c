package dosing

import (
	"time"

	"github.com/med-timely/bot/internal/domain"
)

// DoseTimes returns the wall-clock times of n evenly spread doses in the
// window, in ascending order. One dose is taken at the window start; two
// at its start and end; more are spaced by Interval with both ends included.
func DoseTimes(w domain.DaylightWindow, n int) []domain.TimeOfDay {
	switch {
	case n < 1:
		return nil
	case n == 1:
		return []domain.TimeOfDay{w.Start}
	case n == 2:
		return []domain.TimeOfDay{w.Start, w.End}
	}

	span := int64(w.Duration())
	times := make([]domain.TimeOfDay, n)
	for i := 0; i < n; i++ {
		offset := time.Duration(span * int64(i) / int64(n-1))
		t := (w.Start.Duration() + offset).Truncate(time.Second) % domain.Day
		times[i] = domain.TimeOfDay(t)
	}
	return times
}

// Interval is the spacing between consecutive doses. It is zero for a
// single daily dose.
func Interval(w domain.DaylightWindow, n int) time.Duration {
	if n < 2 {
		return 0
	}
	return w.Duration() / time.Duration(n-1)
}
