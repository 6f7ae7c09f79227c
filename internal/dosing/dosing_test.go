package dosing

import (
	"testing"
	"time"

	"github.com/med-timely/bot/internal/domain"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func moscowUser() *domain.User {
	return &domain.User{
		ID:       1,
		Timezone: "Europe/Moscow",
		DayStart: domain.Clock(8, 0),
		DayEnd:   domain.Clock(20, 0),
	}
}

func newSchedule(dosesPerDay int, start time.Time) *domain.Schedule {
	return &domain.Schedule{
		ID:          10,
		UserID:      1,
		DrugName:    "Aspirin",
		Dose:        "1 tablet",
		DosesPerDay: dosesPerDay,
		StartAt:     start,
	}
}

func confirmedAt(ts ...time.Time) []domain.Dose {
	doses := make([]domain.Dose, 0, len(ts))
	for i, t := range ts {
		doses = append(doses, domain.Dose{ID: int64(i + 1), UserID: 1, ScheduleID: 10, TakenAt: t, Confirmed: true})
	}
	return doses
}

func assertInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	if !want.Equal(got) {
		t.Errorf("want %s, got %s", want.UTC().Format(time.RFC3339), got.UTC().Format(time.RFC3339))
	}
}
