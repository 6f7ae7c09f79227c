package dosing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/med-timely/bot/internal/domain"
)

func berlinUser() *domain.User {
	return &domain.User{
		ID:       2,
		Timezone: "Europe/Berlin",
		DayStart: domain.Clock(8, 0),
		DayEnd:   domain.Clock(20, 0),
	}
}

// ambiguous reports whether the wall clock of t in loc is shared with the
// instant an hour before or after it.
func ambiguous(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	for _, d := range []time.Duration{-time.Hour, time.Hour} {
		other := t.Add(d).In(loc)
		if sameDate(other, local) && domain.TimeOfDayOf(other) == domain.TimeOfDayOf(local) {
			return true
		}
	}
	return false
}

func TestLocalRoundTrip(t *testing.T) {
	user := berlinUser()
	loc, err := user.Location()
	require.NoError(t, err)

	days := []struct {
		name string
		from time.Time
	}{
		{name: "winter day", from: utc(2024, 1, 15, 0, 0)},
		{name: "spring forward", from: utc(2024, 3, 30, 22, 0)},
		{name: "summer day", from: utc(2024, 7, 1, 0, 0)},
		{name: "fall back", from: utc(2024, 10, 26, 21, 0)},
	}

	for _, tt := range days {
		t.Run(tt.name, func(t *testing.T) {
			for at := tt.from; at.Before(tt.from.Add(26 * time.Hour)); at = at.Add(10 * time.Minute) {
				local, err := user.InLocalTime(at)
				require.NoError(t, err)
				assert.True(t, local.Equal(at), "instant %s changed to %s", at, local)
				assert.Equal(t, loc.String(), local.Location().String())

				back := domain.TimeOfDayOf(local).On(local)
				if ambiguous(at, loc) {
					assert.True(t, back.Equal(at) || back.Equal(at.Add(time.Hour)) || back.Equal(at.Add(-time.Hour)),
						"ambiguous %s came back as %s", at, back)
					continue
				}
				assertInstant(t, at, back)
			}
		})
	}
}

func TestTimeOfDayOn_NonexistentLocalTime(t *testing.T) {
	user := berlinUser()
	loc, err := user.Location()
	require.NoError(t, err)
	day := time.Date(2024, 3, 31, 12, 0, 0, 0, loc)

	// 02:30 does not exist on this date; it resolves forward to 03:30 CEST.
	got := domain.Clock(2, 30).On(day)
	assertInstant(t, utc(2024, 3, 31, 1, 30), got)
	assertInstant(t, got, domain.Clock(2, 30).On(day))

	// Wall clock order survives the gap.
	prev := domain.Clock(0, 0).On(day)
	for m := 1; m < 24*60; m++ {
		cur := domain.Clock(m/60, m%60).On(day)
		assert.False(t, cur.Before(prev), "%s before %s", cur, prev)
		prev = cur
	}
}

func TestDayBounds_DST(t *testing.T) {
	loc, err := berlinUser().Location()
	require.NoError(t, err)

	from, to := DayBounds(utc(2024, 3, 31, 10, 0), loc)
	assertInstant(t, utc(2024, 3, 30, 23, 0), from)
	assertInstant(t, utc(2024, 3, 31, 22, 0), to)
	assert.Equal(t, 23*time.Hour, to.Sub(from))

	from, to = DayBounds(utc(2024, 10, 27, 10, 0), loc)
	assertInstant(t, utc(2024, 10, 26, 22, 0), from)
	assertInstant(t, utc(2024, 10, 27, 23, 0), to)
	assert.Equal(t, 25*time.Hour, to.Sub(from))
}

func TestNextDoseTime_AcrossSpringForward(t *testing.T) {
	user := berlinUser()
	s := newSchedule(3, utc(2024, 3, 30, 0, 0))

	// 20:30 CET on Saturday rolls to 08:00 CEST on Sunday.
	got, ok, err := NextDoseTime(user, s, nil, utc(2024, 3, 30, 19, 30))
	require.NoError(t, err)
	require.True(t, ok)
	assertInstant(t, utc(2024, 3, 31, 6, 0), got)
}
