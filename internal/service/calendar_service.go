package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/clients/caldav"
	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/dosing"
)

const doseEventDuration = 15 * time.Minute

// SlotRecurrence is the daily recurrence of one dose slot of a schedule.
type SlotRecurrence struct {
	Index int
	Slot  domain.TimeOfDay
	Rule  *rrule.RRule
}

// CalendarService exports dose slots as recurring calendar events and
// publishes them to CalDAV when a client is configured.
type CalendarService struct {
	client *caldav.Client
	log    *zap.Logger
	now    func() time.Time
}

func NewCalendarService(client *caldav.Client, log *zap.Logger) *CalendarService {
	return &CalendarService{client: client, log: log, now: time.Now}
}

// IsConfigured returns true if CalDAV publishing is available
func (s *CalendarService) IsConfigured() bool {
	return s.client.IsConfigured()
}

// SlotRecurrences builds one daily rule per dose slot. Each rule starts at
// the first occurrence of the slot not before the schedule start and runs
// until the schedule end, if any.
func (s *CalendarService) SlotRecurrences(user *domain.User, sc *domain.Schedule) ([]SlotRecurrence, error) {
	loc, err := user.Location()
	if err != nil {
		return nil, err
	}

	startDay := sc.StartAt.In(loc)
	var recs []SlotRecurrence
	for i, slot := range dosing.DoseTimes(user.Window(), sc.DosesPerDay) {
		first := slot.On(startDay)
		if first.Before(sc.StartAt) {
			first = slot.On(startDay.AddDate(0, 0, 1))
		}

		opt := rrule.ROption{Freq: rrule.DAILY, Dtstart: first}
		if sc.EndAt != nil {
			if first.After(*sc.EndAt) {
				continue
			}
			opt.Until = sc.EndAt.UTC()
		}

		rule, err := rrule.NewRRule(opt)
		if err != nil {
			return nil, fmt.Errorf("build rule for slot %s: %w", slot, err)
		}
		recs = append(recs, SlotRecurrence{Index: i, Slot: slot, Rule: rule})
	}
	return recs, nil
}

// Events converts the schedules into calendar events, one per dose slot.
func (s *CalendarService) Events(user *domain.User, schedules []*domain.Schedule) ([]caldav.Event, error) {
	var events []caldav.Event
	for _, sc := range schedules {
		recs, err := s.SlotRecurrences(user, sc)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			opt := r.Rule.OrigOptions
			events = append(events, caldav.Event{
				UID:         slotUID(sc.ID, r.Index),
				Summary:     fmt.Sprintf("💊 %s (%s)", sc.DrugName, sc.Dose),
				Description: sc.Comment,
				Start:       opt.Dtstart,
				Duration:    doseEventDuration,
				RRule:       &opt,
			})
		}
	}
	return events, nil
}

// ExportICS renders the schedules as an iCalendar document.
func (s *CalendarService) ExportICS(user *domain.User, schedules []*domain.Schedule) ([]byte, error) {
	events, err := s.Events(user, schedules)
	if err != nil {
		return nil, err
	}

	cal := caldav.NewCalendar()
	stamp := s.now()
	for _, e := range events {
		cal.Children = append(cal.Children, caldav.EventComponent(e, stamp))
	}
	return caldav.Encode(cal)
}

// Publish pushes the schedules' events to the configured CalDAV calendar.
// Events have stable UIDs, so publishing again replaces them.
func (s *CalendarService) Publish(ctx context.Context, user *domain.User, schedules []*domain.Schedule) (int, error) {
	if !s.IsConfigured() {
		return 0, fmt.Errorf("CalDAV not configured")
	}

	events, err := s.Events(user, schedules)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, e := range events {
		if err := s.client.PutEvent(ctx, e); err != nil {
			return published, err
		}
		published++
	}

	s.log.Info("dose events published",
		zap.Int64("user_id", user.ID),
		zap.Int("events", published))
	return published, nil
}

// Unpublish removes the schedule's slot events from the CalDAV calendar.
func (s *CalendarService) Unpublish(ctx context.Context, sc *domain.Schedule) error {
	if !s.IsConfigured() {
		return nil
	}
	for i := 0; i < sc.DosesPerDay; i++ {
		if err := s.client.DeleteEvent(ctx, slotUID(sc.ID, i)); err != nil {
			return err
		}
	}
	return nil
}

// Calendars lists the calendars available on the CalDAV server.
func (s *CalendarService) Calendars(ctx context.Context) ([]caldav.Calendar, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("CalDAV not configured")
	}
	return s.client.DiscoverCalendars(ctx)
}

// slotUID is stable for a schedule slot so re-publishing overwrites it.
func slotUID(scheduleID int64, slot int) string {
	name := fmt.Sprintf("medtimely:schedule:%d:slot:%d", scheduleID, slot)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String() + "@medtimely"
}
