package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/metrics"
	"github.com/med-timely/bot/internal/storage"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func setupTestDB(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type testEnv struct {
	store     *storage.Storage
	users     *UserService
	schedules *ScheduleService
	reminders *ReminderService
	metrics   *metrics.Metrics
}

func setupTestServices(t *testing.T) *testEnv {
	t.Helper()
	store := setupTestDB(t)
	m := metrics.New()
	users := NewUserService(store, UserDefaults{
		Timezone: "UTC",
		Window:   domain.DaylightWindow{Start: domain.Clock(8, 0), End: domain.Clock(20, 0)},
	}, zap.NewNop())
	schedules := NewScheduleService(store, m, zap.NewNop())
	return &testEnv{
		store:     store,
		users:     users,
		schedules: schedules,
		reminders: NewReminderService(store, schedules, zap.NewNop()),
		metrics:   m,
	}
}

// at freezes the schedule service clock.
func (e *testEnv) at(now time.Time) {
	e.schedules.now = func() time.Time { return now }
}

func (e *testEnv) moscowUser(t *testing.T, telegramID int64) *domain.User {
	t.Helper()
	ctx := context.Background()
	u, _, err := e.users.Register(ctx, Identity{TelegramID: telegramID, Name: "Anna"})
	require.NoError(t, err)
	require.NoError(t, e.users.SetTimezone(ctx, u, "Europe/Moscow"))
	return u
}

func (e *testEnv) createSchedule(t *testing.T, u *domain.User, dosesPerDay int, start time.Time) *domain.Schedule {
	t.Helper()
	e.at(start)
	sc, err := e.schedules.Create(context.Background(), u, domain.ScheduleInput{
		DrugName:    "Aspirin",
		Dose:        "1 tablet",
		DosesPerDay: dosesPerDay,
	})
	require.NoError(t, err)
	return sc
}
