package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/dosing"
	"github.com/med-timely/bot/internal/metrics"
	"github.com/med-timely/bot/internal/storage"
)

const (
	DefaultHistoryDays = 7
	MaxHistoryDays     = 365
)

// LogOutcome is the result of a dose confirmation.
type LogOutcome int

const (
	OutcomeLogged LogOutcome = iota
	OutcomeAlreadyRecorded
)

func (o LogOutcome) String() string {
	switch o {
	case OutcomeLogged:
		return "logged"
	case OutcomeAlreadyRecorded:
		return "already_recorded"
	default:
		return "unknown"
	}
}

type LogResult struct {
	Outcome  LogOutcome
	Dose     *domain.Dose
	Schedule *domain.Schedule
}

// ScheduleView is a schedule together with its next due dose.
type ScheduleView struct {
	Schedule *domain.Schedule
	Next     time.Time
	HasNext  bool
}

type ScheduleService struct {
	storage *storage.Storage
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewScheduleService(s *storage.Storage, m *metrics.Metrics, log *zap.Logger) *ScheduleService {
	return &ScheduleService{storage: s, metrics: m, log: log, now: time.Now}
}

// Create validates the input and starts a new course now.
func (s *ScheduleService) Create(ctx context.Context, user *domain.User, in domain.ScheduleInput) (*domain.Schedule, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sc := in.Build(user.ID, s.now().UTC())
	if err := s.storage.CreateSchedule(ctx, sc); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.metrics.ScheduleCreated()
	s.log.Info("schedule created",
		zap.Int64("user_id", user.ID),
		zap.Int64("schedule_id", sc.ID),
		zap.Int("doses_per_day", sc.DosesPerDay))
	return sc, nil
}

// Get returns the user's schedule or ErrNotFound.
func (s *ScheduleService) Get(ctx context.Context, user *domain.User, id int64) (*domain.Schedule, error) {
	sc, err := s.storage.GetUserSchedule(ctx, user.ID, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if sc == nil {
		return nil, domain.ErrNotFound
	}
	return sc, nil
}

func (s *ScheduleService) ListActive(ctx context.Context, user *domain.User) ([]*domain.Schedule, error) {
	return s.storage.ListActiveSchedules(ctx, storage.ActiveFilter{UserID: user.ID, Now: s.now()})
}

// ListNotTaken returns active schedules without a confirmed dose in the
// current slot window.
func (s *ScheduleService) ListNotTaken(ctx context.Context, user *domain.User) ([]*domain.Schedule, error) {
	return s.storage.ListActiveSchedules(ctx, storage.ActiveFilter{UserID: user.ID, Now: s.now(), NotTaken: true})
}

// Overview returns the active schedules with their next dose times.
func (s *ScheduleService) Overview(ctx context.Context, user *domain.User) ([]ScheduleView, error) {
	schedules, err := s.ListActive(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	views := make([]ScheduleView, 0, len(schedules))
	for _, sc := range schedules {
		next, ok, err := s.NextDoseTime(ctx, user, sc)
		if err != nil {
			return nil, err
		}
		views = append(views, ScheduleView{Schedule: sc, Next: next, HasNext: ok})
	}
	return views, nil
}

// Stop ends the user's schedule now.
func (s *ScheduleService) Stop(ctx context.Context, user *domain.User, id int64) (*domain.Schedule, error) {
	sc, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if sc.HasEnded(now) {
		return nil, domain.ErrScheduleEnded
	}
	if err := s.storage.StopSchedule(ctx, sc.ID, now); err != nil {
		return nil, fmt.Errorf("stop schedule: %w", err)
	}
	sc.EndAt = &now
	return sc, nil
}

// NextDoseTime returns when the next dose of sc is due. ok is false once
// the course is complete.
func (s *ScheduleService) NextDoseTime(ctx context.Context, user *domain.User, sc *domain.Schedule) (time.Time, bool, error) {
	return s.nextDoseTime(ctx, s.storage, user, sc, s.now())
}

func (s *ScheduleService) nextDoseTime(ctx context.Context, tx *storage.Storage, user *domain.User, sc *domain.Schedule, now time.Time) (time.Time, bool, error) {
	loc, err := user.Location()
	if err != nil {
		return time.Time{}, false, err
	}

	from := now
	if sc.StartAt.After(from) {
		from = sc.StartAt
	}
	// The search looks at most a couple of local days ahead.
	dayFrom, _ := dosing.DayBounds(from, loc)
	doses, err := tx.ListDoses(ctx, storage.DoseFilter{
		ScheduleID:    sc.ID,
		From:          dayFrom,
		To:            dayFrom.AddDate(0, 0, 3),
		ConfirmedOnly: true,
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("list doses: %w", err)
	}

	return dosing.NextDoseTime(user, sc, doses, now)
}

// CurrentDose resolves the dose record a confirmation made now applies to,
// reading through the given transaction handle.
func (s *ScheduleService) CurrentDose(ctx context.Context, tx *storage.Storage, user *domain.User, sc *domain.Schedule) (*domain.Dose, error) {
	return s.currentDose(ctx, tx, user, sc, s.now())
}

func (s *ScheduleService) currentDose(ctx context.Context, tx *storage.Storage, user *domain.User, sc *domain.Schedule, now time.Time) (*domain.Dose, error) {
	loc, err := user.Location()
	if err != nil {
		return nil, err
	}
	from, to := dosing.DayBounds(now, loc)
	today, err := tx.ListDoses(ctx, storage.DoseFilter{
		ScheduleID:  sc.ID,
		From:        from,
		To:          to,
		NewestFirst: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list today's doses: %w", err)
	}
	return dosing.CurrentDose(user, sc, today, now)
}

// LogDose confirms the current dose of the user's schedule. A dose that
// is already confirmed is reported through the outcome, not as an error.
func (s *ScheduleService) LogDose(ctx context.Context, user *domain.User, scheduleID int64) (*LogResult, error) {
	now := s.now().UTC()

	var res *LogResult
	err := s.storage.WithTxRetry(ctx, func(tx *storage.Storage) error {
		sc, err := tx.GetUserSchedule(ctx, user.ID, scheduleID)
		if err != nil {
			return fmt.Errorf("get schedule: %w", err)
		}
		if sc == nil {
			return domain.ErrNotFound
		}
		if sc.HasEnded(now) {
			return domain.ErrScheduleEnded
		}

		dose, err := s.currentDose(ctx, tx, user, sc, now)
		if err != nil {
			return err
		}

		res = &LogResult{Dose: dose, Schedule: sc}
		if dose.Confirmed {
			res.Outcome = OutcomeAlreadyRecorded
			return nil
		}

		dose.Confirmed = true
		dose.TakenAt = now
		if dose.IsNew() {
			err = tx.CreateDose(ctx, dose)
		} else {
			err = tx.UpdateDose(ctx, dose)
		}
		if err != nil {
			return fmt.Errorf("save dose: %w", err)
		}
		res.Outcome = OutcomeLogged
		return nil
	})
	if err != nil {
		var appErr *domain.AppError
		if !errors.As(err, &appErr) {
			s.log.Error("log dose failed",
				zap.Int64("user_id", user.ID),
				zap.Int64("schedule_id", scheduleID),
				zap.Error(err))
		}
		return nil, err
	}

	s.metrics.DoseLogged(res.Outcome.String())
	return res, nil
}

// AdherenceStats reports adherence for every schedule overlapping the
// last days days.
func (s *ScheduleService) AdherenceStats(ctx context.Context, user *domain.User, days int) ([]domain.Adherence, error) {
	if days < 1 || days > MaxHistoryDays {
		return nil, domain.NewValidationError(fmt.Sprintf("days must be between 1 and %d", MaxHistoryDays))
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)

	schedules, err := s.storage.ListSchedulesInRange(ctx, user.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	reports := make([]domain.Adherence, 0, len(schedules))
	for _, sc := range schedules {
		doses, err := s.storage.ListDoses(ctx, storage.DoseFilter{
			ScheduleID:    sc.ID,
			From:          start,
			To:            end.Add(time.Second),
			ConfirmedOnly: true,
		})
		if err != nil {
			return nil, fmt.Errorf("list doses: %w", err)
		}

		r, err := dosing.Report(user, sc, doses, start, end)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
