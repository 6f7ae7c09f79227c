package domain

import (
	"fmt"
	"time"
)

type User struct {
	ID           int64
	TelegramID   int64
	Name         string
	Username     string
	LanguageCode string
	Timezone     string
	DayStart     TimeOfDay
	DayEnd       TimeOfDay

	// PrivacyAccepted is set once the user agreed to dose data being stored.
	PrivacyAccepted bool
	CreatedAt       time.Time
}

// LoadTimezone resolves an IANA timezone name. The empty name and "Local"
// are rejected since they resolve to UTC and to the server zone.
func LoadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, Wrap(ErrInvalidTimezone, fmt.Errorf("timezone %q is not an IANA zone name", name))
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, Wrap(ErrInvalidTimezone, err)
	}
	return loc, nil
}

// Location resolves the user's timezone. An unknown name is a
// configuration error, never silently replaced by UTC.
func (u *User) Location() (*time.Location, error) {
	return LoadTimezone(u.Timezone)
}

func (u *User) Window() DaylightWindow {
	return DaylightWindow{Start: u.DayStart, End: u.DayEnd}
}

// DaylightDuration is derived from the current day start/end on every call.
func (u *User) DaylightDuration() time.Duration {
	return u.Window().Duration()
}

// InLocalTime converts t to the user's timezone.
func (u *User) InLocalTime(t time.Time) (time.Time, error) {
	loc, err := u.Location()
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

// IsDaylight reports whether t falls inside the user's daylight window.
func (u *User) IsDaylight(t time.Time) (bool, error) {
	local, err := u.InLocalTime(t)
	if err != nil {
		return false, err
	}
	return u.Window().Contains(TimeOfDayOf(local)), nil
}
