package dosing

import (
	"math"
	"slices"
	"time"

	"github.com/med-timely/bot/internal/domain"
)

// OnTimeTolerance is how far a confirmed dose may be from its expected
// instant and still count as on time.
const OnTimeTolerance = 30 * time.Minute

// ExpectedDoses lists every instant a dose of s was due within
// [start, end], clamped to the schedule's own bounds.
func ExpectedDoses(user *domain.User, s *domain.Schedule, start, end time.Time) ([]time.Time, error) {
	loc, err := user.Location()
	if err != nil {
		return nil, err
	}
	if start.Before(s.StartAt) {
		start = s.StartAt
	}
	if s.EndAt != nil && end.After(*s.EndAt) {
		end = *s.EndAt
	}
	if end.Before(start) {
		return nil, nil
	}

	times := DoseTimes(user.Window(), s.DosesPerDay)
	var expected []time.Time
	for day := StartOfDay(start, loc); !day.After(end); day = nextDay(day) {
		for _, t := range times {
			at := t.On(day)
			if !at.Before(start) && !at.After(end) {
				expected = append(expected, at)
			}
		}
	}
	return expected, nil
}

// Classify matches actual intake instants against expected ones. Both
// slices must be ascending. Each expected instant is matched at most once;
// an actual dose with no unmatched expected instant within the tolerance
// counts as late.
func Classify(expected, actual []time.Time) (onTime, late int) {
	j := 0
	for _, a := range actual {
		for j < len(expected) && expected[j].Before(a.Add(-OnTimeTolerance)) {
			j++
		}
		if j < len(expected) && absDuration(expected[j].Sub(a)) <= OnTimeTolerance {
			onTime++
			j++
			continue
		}
		late++
	}
	return onTime, late
}

// Report computes adherence of s over [start, end]. doses may contain
// unconfirmed or out-of-window records; they are filtered here.
func Report(user *domain.User, s *domain.Schedule, doses []domain.Dose, start, end time.Time) (domain.Adherence, error) {
	expected, err := ExpectedDoses(user, s, start, end)
	if err != nil {
		return domain.Adherence{}, err
	}

	var actual []time.Time
	for _, d := range doses {
		if d.Confirmed && !d.TakenAt.Before(start) && !d.TakenAt.After(end) {
			actual = append(actual, d.TakenAt)
		}
	}
	slices.SortFunc(actual, func(a, b time.Time) int { return a.Compare(b) })

	onTime, late := Classify(expected, actual)
	r := domain.Adherence{
		ScheduleID: s.ID,
		DrugName:   s.DrugName,
		Dose:       s.Dose,
		Total:      len(expected),
		Taken:      onTime + late,
		OnTime:     onTime,
		Late:       late,
	}
	r.Missed = max(0, r.Total-r.Taken)
	if r.Total > 0 {
		r.Percentage = int(math.Round(float64(r.Taken) / float64(r.Total) * 100))
	}
	return r, nil
}
