package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/med-timely/bot/internal/domain"
)

func TestFormatSchedule(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Moscow")
	days := 7
	sc := &domain.Schedule{ID: 3, DrugName: "Ibuprofen <forte>", Dose: "200mg", DosesPerDay: 2,
		Duration: &days, Comment: "after food", StartAt: utc(2024, 1, 1, 0, 0)}

	text := FormatSchedule(ScheduleView{Schedule: sc, Next: utc(2024, 1, 1, 17, 0), HasNext: true}, loc)
	assert.Contains(t, text, "Ibuprofen &lt;forte&gt;")
	assert.Contains(t, text, "twice a day")
	assert.Contains(t, text, "for 7 day(s)")
	assert.Contains(t, text, "Next dose: 01.01.2024 20:00")
	assert.Contains(t, text, "after food")

	done := FormatSchedule(ScheduleView{Schedule: sc}, loc)
	assert.Contains(t, done, "Course completed")
}

func TestFormatScheduleList_Empty(t *testing.T) {
	assert.Contains(t, FormatScheduleList(nil, time.UTC), "No active medications")
}

func TestFormatAdherence(t *testing.T) {
	text := FormatAdherence([]domain.Adherence{
		{DrugName: "Aspirin", Dose: "1 tablet", Total: 3, Taken: 2, OnTime: 1, Late: 1, Missed: 1, Percentage: 67},
	}, 3)
	assert.Contains(t, text, "last 3 day(s)")
	assert.Contains(t, text, "Taken 2 of 3 (67%)")
	assert.Contains(t, text, "On time: 1, late: 1, missed: 1")

	assert.Contains(t, FormatAdherence(nil, 7), "No medications")
}

func TestFormatReminderAndProfile(t *testing.T) {
	text := FormatReminder([]*domain.Schedule{{DrugName: "Aspirin", Dose: "1 tablet", Comment: "with water"}})
	assert.Contains(t, text, "Aspirin: 1 tablet (with water)")

	profile := FormatProfile(&domain.User{Name: "Anna", Timezone: "Europe/Moscow", DayStart: domain.Clock(8, 0), DayEnd: domain.Clock(20, 0)})
	assert.Contains(t, profile, "Europe/Moscow")
	assert.Contains(t, profile, "08:00–20:00")
}
