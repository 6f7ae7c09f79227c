package domain

import (
	"strings"
	"time"
)

// MaxDosesPerDay keeps generated dose times distinct at second resolution.
const MaxDosesPerDay = 48

// Schedule is a medication course: a drug taken DosesPerDay times a day
// from StartAt until EndAt (open-ended when nil).
type Schedule struct {
	ID          int64
	UserID      int64
	DrugName    string
	Dose        string
	DosesPerDay int
	Duration    *int // days
	Comment     string
	StartAt     time.Time
	EndAt       *time.Time
	CreatedAt   time.Time
}

// HasEnded reports whether the course is over at now.
func (s *Schedule) HasEnded(now time.Time) bool {
	return s.EndAt != nil && now.After(*s.EndAt)
}

// ScheduleInput is what a user supplies to create a schedule.
type ScheduleInput struct {
	DrugName    string
	Dose        string
	DosesPerDay int
	Duration    *int
	Comment     string
}

func (in *ScheduleInput) Normalize() {
	in.DrugName = strings.TrimSpace(in.DrugName)
	in.Dose = strings.TrimSpace(in.Dose)
	in.Comment = strings.TrimSpace(in.Comment)
}

func (in ScheduleInput) Validate() error {
	switch {
	case in.DrugName == "":
		return NewValidationError("drug name is required")
	case in.Dose == "":
		return NewValidationError("dose is required")
	case in.DosesPerDay < 1:
		return NewValidationError("doses per day must be at least 1")
	case in.DosesPerDay > MaxDosesPerDay:
		return NewValidationError("too many doses per day")
	case in.Duration != nil && *in.Duration < 1:
		return NewValidationError("duration must be at least 1 day")
	}
	return nil
}

// Build creates a schedule starting at start. EndAt is start plus
// Duration days when a duration is given.
func (in ScheduleInput) Build(userID int64, start time.Time) *Schedule {
	s := &Schedule{
		UserID:      userID,
		DrugName:    in.DrugName,
		Dose:        in.Dose,
		DosesPerDay: in.DosesPerDay,
		Duration:    in.Duration,
		Comment:     in.Comment,
		StartAt:     start,
	}
	if in.Duration != nil {
		end := start.AddDate(0, 0, *in.Duration)
		s.EndAt = &end
	}
	return s
}
