package domain

import "time"

// Dose is a single intake record. Unconfirmed doses are placeholders
// created when a reminder was sent.
type Dose struct {
	ID         int64
	UserID     int64
	ScheduleID int64
	TakenAt    time.Time
	Confirmed  bool
}

// IsNew reports whether the dose has not been persisted yet.
func (d *Dose) IsNew() bool {
	return d.ID == 0
}

// Adherence summarizes how one schedule was followed over a window.
type Adherence struct {
	ScheduleID int64
	DrugName   string
	Dose       string
	Total      int
	Taken      int
	OnTime     int
	Late       int
	Missed     int
	Percentage int
}
