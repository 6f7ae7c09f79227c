package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/med-timely/bot/config"
	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/metrics"
	"github.com/med-timely/bot/internal/service"
)

// ReminderSender delivers one reminder message listing schedules to user.
type ReminderSender interface {
	SendReminder(ctx context.Context, user *domain.User, schedules []*domain.Schedule) error
}

type Scheduler struct {
	cron      *cron.Cron
	spec      string
	reminders *service.ReminderService
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	sender    ReminderSender
	log       *zap.Logger
	now       func() time.Time
}

func New(cfg *config.Config, reminders *service.ReminderService, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		spec:      cfg.ReminderSpec,
		reminders: reminders,
		limiter:   rate.NewLimiter(rate.Limit(cfg.SendRate), 1),
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

func (s *Scheduler) SetSender(sender ReminderSender) {
	s.sender = sender
}

// Start registers the reminder check and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.checkReminders(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("scheduler started", zap.String("spec", s.spec))

	<-ctx.Done()
	return nil
}

// Stop waits for a running check to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) checkReminders(ctx context.Context) {
	if s.sender == nil {
		return
	}
	started := time.Now()
	defer s.metrics.ObserveReminderCheck(started)

	now := s.now().UTC()
	due, err := s.reminders.DueReminders(ctx, now)
	if err != nil {
		s.log.Error("failed to collect due reminders", zap.Error(err))
		return
	}

	for _, d := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			s.log.Warn("reminder check interrupted", zap.Error(err))
			return
		}

		n, err := s.reminders.Dispatch(ctx, d, now, s.sender.SendReminder)
		if err != nil {
			s.metrics.ReminderFailed()
			s.log.Error("failed to send reminder",
				zap.Int64("user_id", d.User.ID),
				zap.Int64("telegram_id", d.User.TelegramID),
				zap.Error(err))
			continue
		}
		if n > 0 {
			s.metrics.ReminderSent(1)
			s.log.Debug("reminder sent",
				zap.Int64("user_id", d.User.ID),
				zap.Int("schedules", n))
		}
	}
}
