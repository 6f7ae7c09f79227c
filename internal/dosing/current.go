package dosing

import (
	"slices"
	"time"

	"github.com/med-timely/bot/internal/domain"
)

// CurrentDose decides which dose record a confirmation at now applies to.
//
// today should hold the schedule's dose records for now's local date;
// records from other dates are ignored. The result is either one of those
// records or, when none belongs to the current slot, a fresh unconfirmed
// placeholder (IsNew) that the caller is expected to store.
func CurrentDose(user *domain.User, s *domain.Schedule, today []domain.Dose, now time.Time) (*domain.Dose, error) {
	loc, err := user.Location()
	if err != nil {
		return nil, err
	}
	local := now.In(loc)

	records := make([]domain.Dose, 0, len(today))
	for _, d := range today {
		if sameDate(d.TakenAt.In(loc), local) {
			records = append(records, d)
		}
	}
	slices.SortStableFunc(records, func(a, b domain.Dose) int {
		return b.TakenAt.Compare(a.TakenAt)
	})

	confirmed := 0
	var lastConfirmed *domain.Dose
	for i := range records {
		if records[i].Confirmed {
			confirmed++
			if lastConfirmed == nil {
				lastConfirmed = &records[i]
			}
		}
	}
	if lastConfirmed != nil && confirmed >= s.DosesPerDay {
		return lastConfirmed, nil
	}

	placeholder := &domain.Dose{
		UserID:     user.ID,
		ScheduleID: s.ID,
		TakenAt:    now,
	}

	if s.DosesPerDay <= 1 {
		if len(records) > 0 {
			return &records[0], nil
		}
		return placeholder, nil
	}

	w := user.Window()
	slot := nearestSlot(DoseTimes(w, s.DosesPerDay), domain.TimeOfDayOf(local))
	windowStart := slot.On(local).Add(-Interval(w, s.DosesPerDay) / 2)

	for i := range records {
		if !records[i].TakenAt.Before(windowStart) {
			return &records[i], nil
		}
	}
	return placeholder, nil
}

// nearestSlot returns the dose time closest to tod. Ties go to the
// earlier entry.
func nearestSlot(times []domain.TimeOfDay, tod domain.TimeOfDay) domain.TimeOfDay {
	best := times[0]
	bestDiff := absDuration(time.Duration(tod - best))
	for _, t := range times[1:] {
		if diff := absDuration(time.Duration(tod - t)); diff < bestDiff {
			best, bestDiff = t, diff
		}
	}
	return best
}
