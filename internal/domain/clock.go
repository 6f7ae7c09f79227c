package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day is the length of a civil day as used for time-of-day arithmetic.
const Day = 24 * time.Hour

// TimeOfDay is a wall-clock offset from local midnight.
type TimeOfDay time.Duration

// Clock builds a TimeOfDay from hours and minutes.
func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// TimeOfDayOf returns the wall-clock time of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(h, m), nil
}

func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) }
func (t TimeOfDay) Hour() int               { return int(time.Duration(t) / time.Hour) }
func (t TimeOfDay) Minute() int             { return int(time.Duration(t)%time.Hour) / int(time.Minute) }
func (t TimeOfDay) Second() int             { return int(time.Duration(t)%time.Minute) / int(time.Second) }

// Minutes returns whole minutes since midnight.
func (t TimeOfDay) Minutes() int { return int(time.Duration(t) / time.Minute) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On returns the instant at this wall-clock time on the civil date of day,
// interpreted in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, day.Location())
}

// DaylightWindow is the part of the local day in which reminders are allowed.
// Both ends are inclusive.
type DaylightWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Duration is recomputed on every call; windows carry no cached state.
func (w DaylightWindow) Duration() time.Duration {
	return time.Duration(w.End - w.Start)
}

func (w DaylightWindow) Contains(t TimeOfDay) bool {
	return t >= w.Start && t <= w.End
}

func (w DaylightWindow) Validate() error {
	if w.Start < 0 || w.End >= TimeOfDay(Day) {
		return NewValidationError("daylight hours must be within 00:00 and 23:59")
	}
	if w.Start >= w.End {
		return NewValidationError("day start must be before day end")
	}
	return nil
}

func (w DaylightWindow) String() string {
	return w.Start.String() + "–" + w.End.String()
}
