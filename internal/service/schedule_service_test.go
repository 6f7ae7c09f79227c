package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/storage"
)

func TestScheduleService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	zero := 0

	tests := []struct {
		name string
		in   domain.ScheduleInput
	}{
		{"missing drug", domain.ScheduleInput{Dose: "1", DosesPerDay: 1}},
		{"missing dose", domain.ScheduleInput{DrugName: "Aspirin", Dose: "  ", DosesPerDay: 1}},
		{"zero doses", domain.ScheduleInput{DrugName: "Aspirin", Dose: "1", DosesPerDay: 0}},
		{"too many doses", domain.ScheduleInput{DrugName: "Aspirin", Dose: "1", DosesPerDay: domain.MaxDosesPerDay + 1}},
		{"zero duration", domain.ScheduleInput{DrugName: "Aspirin", Dose: "1", DosesPerDay: 1, Duration: &zero}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.schedules.Create(ctx, u, tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestScheduleService_CreateWithDuration(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	env.at(utc(2024, 1, 1, 0, 0))

	days := 10
	sc, err := env.schedules.Create(ctx, u, domain.ScheduleInput{DrugName: " Amoxicillin ", Dose: "500mg", DosesPerDay: 3, Duration: &days})
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin", sc.DrugName)
	require.NotNil(t, sc.EndAt)
	assert.True(t, utc(2024, 1, 11, 0, 0).Equal(*sc.EndAt))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SchedulesCreated))

	got, err := env.schedules.Get(ctx, u, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.ID, got.ID)
}

func TestScheduleService_DoseFlow(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	sc := env.createSchedule(t, u, 3, utc(2024, 1, 1, 0, 0))

	// 08:00 Moscow time: the first slot is due right now.
	env.at(utc(2024, 1, 1, 5, 0))
	next, ok, err := env.schedules.NextDoseTime(ctx, u, sc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, utc(2024, 1, 1, 5, 0).Equal(next), "got %s", next)

	res, err := env.schedules.LogDose(ctx, u, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLogged, res.Outcome)
	assert.True(t, res.Dose.Confirmed)
	assert.NotZero(t, res.Dose.ID)

	env.at(utc(2024, 1, 1, 5, 20))
	res, err = env.schedules.LogDose(ctx, u, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRecorded, res.Outcome)

	env.at(utc(2024, 1, 1, 9, 0))
	next, ok, err = env.schedules.NextDoseTime(ctx, u, sc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, utc(2024, 1, 1, 11, 0).Equal(next), "got %s", next)

	// 13:45 local belongs to the 14:00 slot.
	env.at(utc(2024, 1, 1, 10, 45))
	res, err = env.schedules.LogDose(ctx, u, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLogged, res.Outcome)

	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.DosesLogged.WithLabelValues("logged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.DosesLogged.WithLabelValues("already_recorded")))
}

func TestScheduleService_LogDoseConfirmsReminderPlaceholder(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	sc := env.createSchedule(t, u, 2, utc(2024, 1, 1, 0, 0))

	placeholder := &domain.Dose{UserID: u.ID, ScheduleID: sc.ID, TakenAt: utc(2024, 1, 1, 5, 0)}
	require.NoError(t, env.store.CreateDose(ctx, placeholder))

	env.at(utc(2024, 1, 1, 5, 30))
	res, err := env.schedules.LogDose(ctx, u, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLogged, res.Outcome)
	assert.Equal(t, placeholder.ID, res.Dose.ID)

	doses, err := env.store.ListDoses(ctx, storage.DoseFilter{ScheduleID: sc.ID})
	require.NoError(t, err)
	require.Len(t, doses, 1)
	assert.True(t, doses[0].Confirmed)
	assert.True(t, utc(2024, 1, 1, 5, 30).Equal(doses[0].TakenAt))
}

func TestScheduleService_LogDoseErrors(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	owner := env.moscowUser(t, 1)
	stranger := env.moscowUser(t, 2)
	sc := env.createSchedule(t, owner, 1, utc(2024, 1, 1, 0, 0))

	env.at(utc(2024, 1, 1, 6, 0))
	_, err := env.schedules.LogDose(ctx, stranger, sc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.schedules.LogDose(ctx, owner, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.schedules.Stop(ctx, owner, sc.ID)
	require.NoError(t, err)

	env.at(utc(2024, 1, 1, 7, 0))
	_, err = env.schedules.LogDose(ctx, owner, sc.ID)
	assert.ErrorIs(t, err, domain.ErrScheduleEnded)

	_, err = env.schedules.Stop(ctx, owner, sc.ID)
	assert.ErrorIs(t, err, domain.ErrScheduleEnded)
}

func TestScheduleService_LogDoseInvalidTimezone(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	sc := env.createSchedule(t, u, 3, utc(2024, 1, 1, 0, 0))

	u.Timezone = "Broken/Zone"
	env.at(utc(2024, 1, 1, 6, 0))
	_, err := env.schedules.LogDose(ctx, u, sc.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTimezone)

	_, _, err = env.schedules.NextDoseTime(ctx, u, sc)
	assert.ErrorIs(t, err, domain.ErrInvalidTimezone)
}

func TestScheduleService_CurrentDoseDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	sc := env.createSchedule(t, u, 3, utc(2024, 1, 1, 0, 0))
	env.at(utc(2024, 1, 1, 5, 0))

	var first, second *domain.Dose
	err := env.store.WithTx(ctx, func(tx *storage.Storage) error {
		var err error
		if first, err = env.schedules.CurrentDose(ctx, tx, u, sc); err != nil {
			return err
		}
		second, err = env.schedules.CurrentDose(ctx, tx, u, sc)
		return err
	})
	require.NoError(t, err)
	assert.True(t, first.IsNew())
	assert.True(t, second.IsNew())

	doses, err := env.store.ListDoses(ctx, storage.DoseFilter{ScheduleID: sc.ID})
	require.NoError(t, err)
	assert.Empty(t, doses)
}

func TestScheduleService_OverviewAndStop(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	a := env.createSchedule(t, u, 1, utc(2024, 1, 1, 0, 0))
	b := env.createSchedule(t, u, 2, utc(2024, 1, 1, 1, 0))

	env.at(utc(2024, 1, 1, 6, 0))
	views, err := env.schedules.Overview(ctx, u)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, a.ID, views[0].Schedule.ID)
	assert.True(t, views[0].HasNext)
	assert.True(t, utc(2024, 1, 2, 5, 0).Equal(views[0].Next))
	assert.True(t, utc(2024, 1, 1, 17, 0).Equal(views[1].Next))

	_, err = env.schedules.Stop(ctx, u, b.ID)
	require.NoError(t, err)

	env.at(utc(2024, 1, 1, 6, 1))
	active, err := env.schedules.ListActive(ctx, u)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)
}

func TestScheduleService_ListNotTaken(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	taken := env.createSchedule(t, u, 3, utc(2024, 1, 1, 0, 0))
	pending := env.createSchedule(t, u, 3, utc(2024, 1, 1, 0, 0))

	env.at(utc(2024, 1, 1, 5, 0))
	_, err := env.schedules.LogDose(ctx, u, taken.ID)
	require.NoError(t, err)

	env.at(utc(2024, 1, 1, 5, 30))
	got, err := env.schedules.ListNotTaken(ctx, u)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}

func TestScheduleService_AdherenceStats(t *testing.T) {
	ctx := context.Background()
	env := setupTestServices(t)
	u := env.moscowUser(t, 1)
	sc := env.createSchedule(t, u, 1, utc(2024, 1, 1, 0, 0))

	// Confirm the 08:00 local dose on Jan 1 and Jan 2, skip Jan 3.
	for _, at := range []time.Time{utc(2024, 1, 1, 5, 5), utc(2024, 1, 2, 7, 0)} {
		env.at(at)
		_, err := env.schedules.LogDose(ctx, u, sc.ID)
		require.NoError(t, err)
	}

	env.at(utc(2024, 1, 3, 23, 0))
	reports, err := env.schedules.AdherenceStats(ctx, u, 3)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	assert.Equal(t, sc.ID, r.ScheduleID)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Taken)
	assert.Equal(t, 1, r.OnTime)
	assert.Equal(t, 1, r.Late)
	assert.Equal(t, 1, r.Missed)
	assert.Equal(t, 67, r.Percentage)

	for _, days := range []int{0, -1, MaxHistoryDays + 1} {
		_, err := env.schedules.AdherenceStats(ctx, u, days)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}
