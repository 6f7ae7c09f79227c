package dosing

import (
	"time"

	"github.com/med-timely/bot/internal/domain"
)

// maxRollovers bounds how many times the search may move to a later day.
// Moving past the start date, past day end and past a full day each
// happen at most once in practice.
const maxRollovers = 7

// NextDoseTime returns the instant the next dose of s is due at or after
// now, in UTC. ok is false when the course is complete. doses are the
// schedule's dose records; only confirmed ones on the candidate local date
// count toward the daily quota. A slot whose tolerance window already holds
// a confirmed dose is skipped, and the result is always later than the
// latest confirmed dose of its day.
func NextDoseTime(user *domain.User, s *domain.Schedule, doses []domain.Dose, now time.Time) (next time.Time, ok bool, err error) {
	loc, err := user.Location()
	if err != nil {
		return time.Time{}, false, err
	}
	if s.DosesPerDay < 1 {
		return time.Time{}, false, domain.NewValidationError("doses per day must be at least 1")
	}

	w := user.Window()
	times := DoseTimes(w, s.DosesPerDay)
	half := Interval(w, s.DosesPerDay) / 2
	cur := now
	for i := 0; i < maxRollovers; i++ {
		if s.HasEnded(cur) {
			return time.Time{}, false, nil
		}

		if cur.Before(s.StartAt) {
			first := user.DayStart.On(s.StartAt.In(loc))
			if first.Before(s.StartAt) {
				first = s.StartAt
			}
			cur = first
			continue
		}

		local := cur.In(loc)
		taken := confirmedOn(doses, local)
		if domain.TimeOfDayOf(local) > user.DayEnd || len(taken) >= s.DosesPerDay {
			cur = user.DayStart.On(nextDay(local))
			continue
		}

		candidate, found := openSlotFrom(times, half, local, taken)
		if !found {
			cur = user.DayStart.On(nextDay(local))
			continue
		}
		if s.HasEnded(candidate) {
			return time.Time{}, false, nil
		}
		return candidate.UTC(), true, nil
	}

	return time.Time{}, false, domain.ErrNoDoseSlot
}

// openSlotFrom returns the earliest dose instant on local's date, clamped
// to local, whose window [slot-half, slot+half) holds none of taken and
// which falls after every instant in taken.
func openSlotFrom(times []domain.TimeOfDay, half time.Duration, local time.Time, taken []time.Time) (time.Time, bool) {
	var last time.Time
	for _, at := range taken {
		if at.After(last) {
			last = at
		}
	}

	tod := domain.TimeOfDayOf(local)
	for _, t := range times {
		if t < tod {
			continue
		}
		slot := t.On(local)
		if slotTaken(slot, half, taken) {
			continue
		}
		candidate := slot
		if candidate.Before(local) {
			candidate = local
		}
		if !candidate.After(last) {
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

func slotTaken(slot time.Time, half time.Duration, taken []time.Time) bool {
	from, to := slot.Add(-half), slot.Add(half)
	for _, at := range taken {
		if !at.Before(from) && at.Before(to) {
			return true
		}
	}
	return false
}

// confirmedOn returns the instants of confirmed doses taken on the local
// civil date of day.
func confirmedOn(doses []domain.Dose, day time.Time) []time.Time {
	var taken []time.Time
	for _, d := range doses {
		if d.Confirmed && sameDate(d.TakenAt.In(day.Location()), day) {
			taken = append(taken, d.TakenAt)
		}
	}
	return taken
}
