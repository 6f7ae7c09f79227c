package caldav

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Calendar represents a remote calendar collection
type Calendar struct {
	ID          string // Calendar path
	DisplayName string
	Description string
}

// Event is a recurring dose slot published to a calendar
type Event struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time // wall clock in the event's timezone
	Duration    time.Duration
	RRule       *rrule.ROption
}
