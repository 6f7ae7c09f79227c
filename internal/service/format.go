package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/med-timely/bot/internal/domain"
)

const dateTimeLayout = "02.01.2006 15:04"

// FormatSchedule renders a schedule card for the user's timezone.
func FormatSchedule(v ScheduleView, loc *time.Location) string {
	sc := v.Schedule
	var sb strings.Builder

	fmt.Fprintf(&sb, "💊 <b>%s</b> #%d\n", html.EscapeString(sc.DrugName), sc.ID)
	fmt.Fprintf(&sb, "Dose: %s\n", html.EscapeString(sc.Dose))
	fmt.Fprintf(&sb, "Frequency: %s\n", timesPerDay(sc.DosesPerDay))
	fmt.Fprintf(&sb, "Since: %s", sc.StartAt.In(loc).Format(dateTimeLayout))
	if sc.Duration != nil {
		fmt.Fprintf(&sb, " for %d day(s)", *sc.Duration)
	}
	sb.WriteString("\n")

	if v.HasNext {
		fmt.Fprintf(&sb, "Next dose: %s\n", v.Next.In(loc).Format(dateTimeLayout))
	} else {
		sb.WriteString("Course completed ✅\n")
	}
	if sc.Comment != "" {
		fmt.Fprintf(&sb, "📝 %s\n", html.EscapeString(sc.Comment))
	}
	return sb.String()
}

// FormatScheduleList renders all active schedules.
func FormatScheduleList(views []ScheduleView, loc *time.Location) string {
	if len(views) == 0 {
		return "No active medications. Add one with /schedule"
	}

	cards := make([]string, 0, len(views))
	for _, v := range views {
		cards = append(cards, FormatSchedule(v, loc))
	}
	return "<b>Your medications</b>\n\n" + strings.Join(cards, "\n")
}

// FormatAdherence renders the /history report.
func FormatAdherence(reports []domain.Adherence, days int) string {
	if len(reports) == 0 {
		return fmt.Sprintf("No medications in the last %d day(s).", days)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>Adherence for the last %d day(s)</b>\n\n", days)
	for _, r := range reports {
		fmt.Fprintf(&sb, "<b>%s</b> (%s)\n", html.EscapeString(r.DrugName), html.EscapeString(r.Dose))
		fmt.Fprintf(&sb, "Taken %d of %d (%d%%)\n", r.Taken, r.Total, r.Percentage)
		fmt.Fprintf(&sb, "On time: %d, late: %d, missed: %d\n\n", r.OnTime, r.Late, r.Missed)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatReminder renders the periodic reminder message.
func FormatReminder(schedules []*domain.Schedule) string {
	var sb strings.Builder
	sb.WriteString("⏰ <b>Time for your medication</b>\n\n")
	for _, sc := range schedules {
		fmt.Fprintf(&sb, "💊 %s: %s", html.EscapeString(sc.DrugName), html.EscapeString(sc.Dose))
		if sc.Comment != "" {
			fmt.Fprintf(&sb, " (%s)", html.EscapeString(sc.Comment))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nTap a button once you've taken it.")
	return sb.String()
}

// FormatProfile renders the user's settings.
func FormatProfile(u *domain.User) string {
	var sb strings.Builder
	sb.WriteString("👤 <b>Profile</b>\n")
	if u.Name != "" {
		fmt.Fprintf(&sb, "Name: %s\n", html.EscapeString(u.Name))
	}
	fmt.Fprintf(&sb, "Timezone: %s\n", html.EscapeString(u.Timezone))
	fmt.Fprintf(&sb, "Reminder hours: %s\n", u.Window())
	return sb.String()
}

func timesPerDay(n int) string {
	switch n {
	case 1:
		return "once a day"
	case 2:
		return "twice a day"
	default:
		return fmt.Sprintf("%d times a day", n)
	}
}
