package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/storage"
)

// reminderGrace is how far back a reminder tick looks for a slot that has
// just come due. It must cover the trigger interval.
const reminderGrace = 30 * time.Minute

// DueReminder groups the schedules one user should be reminded about.
type DueReminder struct {
	User      *domain.User
	Schedules []*domain.Schedule
}

// DeliverFunc sends one reminder message about schedules to user.
type DeliverFunc func(ctx context.Context, user *domain.User, schedules []*domain.Schedule) error

type ReminderService struct {
	storage   *storage.Storage
	schedules *ScheduleService
	log       *zap.Logger
}

func NewReminderService(s *storage.Storage, schedules *ScheduleService, log *zap.Logger) *ReminderService {
	return &ReminderService{storage: s, schedules: schedules, log: log}
}

// DueReminders returns running schedules with no confirmed dose in their
// current window, grouped by user. Users outside their daylight window
// are skipped, as are users whose timezone cannot be resolved.
func (s *ReminderService) DueReminders(ctx context.Context, now time.Time) ([]DueReminder, error) {
	schedules, err := s.storage.ListActiveSchedules(ctx, storage.ActiveFilter{Now: now, NotTaken: true})
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}

	var due []DueReminder
	for i := 0; i < len(schedules); {
		userID := schedules[i].UserID
		j := i
		for j < len(schedules) && schedules[j].UserID == userID {
			j++
		}
		group := schedules[i:j]
		i = j

		user, err := s.storage.GetUserByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", userID, err)
		}
		if user == nil {
			continue
		}

		awake, err := user.IsDaylight(now)
		if err != nil {
			s.log.Error("cannot resolve user timezone",
				zap.Int64("user_id", user.ID),
				zap.String("timezone", user.Timezone),
				zap.Error(err))
			continue
		}
		if !awake {
			continue
		}

		due = append(due, DueReminder{User: user, Schedules: group})
	}
	return due, nil
}

// Dispatch reminds the user about schedules whose next dose has come due
// and whose current slot has no record yet. In a single transaction it
// checks each schedule, calls deliver with the ones that need a reminder
// and stores an unconfirmed placeholder for each of them. Nothing is
// stored when deliver fails. It returns how many schedules were included
// in the reminder.
func (s *ReminderService) Dispatch(ctx context.Context, due DueReminder, now time.Time, deliver DeliverFunc) (int, error) {
	sent := 0
	err := s.storage.WithTx(ctx, func(tx *storage.Storage) error {
		var pending []*domain.Dose
		var schedules []*domain.Schedule
		for _, sc := range due.Schedules {
			next, ok, err := s.schedules.nextDoseTime(ctx, tx, due.User, sc, now.Add(-reminderGrace))
			if err != nil {
				return fmt.Errorf("next dose of schedule %d: %w", sc.ID, err)
			}
			if !ok || next.After(now) {
				continue
			}

			dose, err := s.schedules.currentDose(ctx, tx, due.User, sc, now)
			if err != nil {
				return fmt.Errorf("current dose of schedule %d: %w", sc.ID, err)
			}
			if !dose.IsNew() {
				continue
			}
			pending = append(pending, dose)
			schedules = append(schedules, sc)
		}
		if len(pending) == 0 {
			return nil
		}

		if err := deliver(ctx, due.User, schedules); err != nil {
			return fmt.Errorf("deliver: %w", err)
		}

		for _, d := range pending {
			if err := tx.CreateDose(ctx, d); err != nil {
				return fmt.Errorf("store reminder dose: %w", err)
			}
		}
		sent = len(schedules)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}
