package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/service"
)

const helpText = `<b>Commands:</b>

<b>Medications</b>
/schedule drug | dose | times per day [| days] [| comment]
   e.g. /schedule Aspirin | 1 tablet | 3 | 10 | after meals
/list — active medications and next doses
/taken — log a dose
/stop — stop a medication
/history [days] — adherence report, 7 days by default

<b>Settings</b>
/me — your profile
/hours start end — reminder hours, e.g. /hours 8 22
/tz zone — timezone, e.g. /tz Europe/Berlin

<b>Calendar</b>
/export — download doses as an .ics calendar
/sync — publish doses to the shared CalDAV calendar`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *domain.User) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.cmdStart(chatID, user)
	case "help":
		b.reply(chatID, helpText)
	case "schedule":
		b.cmdSchedule(ctx, chatID, user, args)
	case "list":
		b.cmdList(ctx, chatID, user)
	case "taken":
		b.cmdTaken(ctx, chatID, user, args)
	case "history":
		b.cmdHistory(ctx, chatID, user, args)
	case "stop":
		b.cmdStop(ctx, chatID, user, args)
	case "me":
		b.reply(chatID, service.FormatProfile(user))
	case "hours":
		b.cmdHours(ctx, chatID, user, args)
	case "tz":
		b.cmdTimezone(ctx, chatID, user, args)
	case "export":
		b.cmdExport(ctx, chatID, user)
	case "sync":
		b.cmdSync(ctx, chatID, user)
	default:
		b.reply(chatID, "Unknown command. /help for the list")
	}
}

func welcomeText(user *domain.User) string {
	return fmt.Sprintf("👋 Hi, %s!\n\nI will remind you to take your medications between %s and %s (%s).\n\n/help — list of commands",
		html.EscapeString(user.Name), user.DayStart, user.DayEnd, html.EscapeString(user.Timezone))
}

func (b *Bot) cmdStart(chatID int64, user *domain.User) {
	if !user.PrivacyAccepted {
		b.sendPrivacy(chatID)
		return
	}
	b.reply(chatID, fmt.Sprintf("👋 Welcome back, %s!", html.EscapeString(user.Name)))
}

func (b *Bot) cmdSchedule(ctx context.Context, chatID int64, user *domain.User, args string) {
	in, err := service.ParseScheduleArgs(args)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	sc, err := b.schedules.Create(ctx, user, in)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	loc, err := user.Location()
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	next, ok, err := b.schedules.NextDoseTime(ctx, user, sc)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	card := service.FormatSchedule(service.ScheduleView{Schedule: sc, Next: next, HasNext: ok}, loc)
	b.reply(chatID, "✅ Medication added\n\n"+card)
}

func (b *Bot) cmdList(ctx context.Context, chatID int64, user *domain.User) {
	loc, err := user.Location()
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	views, err := b.schedules.Overview(ctx, user)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, service.FormatScheduleList(views, loc))
}

// cmdTaken logs the given schedule directly or offers the schedules that
// still wait for a dose.
func (b *Bot) cmdTaken(ctx context.Context, chatID int64, user *domain.User, args string) {
	if args != "" {
		id, err := parseScheduleID(args)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.logDose(ctx, chatID, user, id, "")
		return
	}

	schedules, err := b.schedules.ListNotTaken(ctx, user)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(schedules) == 0 {
		b.reply(chatID, "✅ Nothing to take right now.")
		return
	}
	if err := b.SendMessageWithKeyboard(chatID, "Which medication did you take?", doseKeyboard(schedules)); err != nil {
		b.log.Warn("failed to send dose keyboard", zap.Error(err))
	}
}

func (b *Bot) cmdHistory(ctx context.Context, chatID int64, user *domain.User, args string) {
	days, err := service.ParseHistoryDays(args)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	reports, err := b.schedules.AdherenceStats(ctx, user, days)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, service.FormatAdherence(reports, days))
}

func (b *Bot) cmdStop(ctx context.Context, chatID int64, user *domain.User, args string) {
	if args != "" {
		id, err := parseScheduleID(args)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.stopSchedule(ctx, chatID, user, id)
		return
	}

	schedules, err := b.schedules.ListActive(ctx, user)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(schedules) == 0 {
		b.reply(chatID, "No active medications.")
		return
	}
	if err := b.SendMessageWithKeyboard(chatID, "Which medication should I stop?", stopKeyboard(schedules)); err != nil {
		b.log.Warn("failed to send stop keyboard", zap.Error(err))
	}
}

func (b *Bot) cmdHours(ctx context.Context, chatID int64, user *domain.User, args string) {
	start, end, err := service.ParseDaylightHours(args)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if err := b.users.SetDaylightHours(ctx, user, start, end); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("⏰ Reminders will be sent between %s and %s.", user.DayStart, user.DayEnd))
}

func (b *Bot) cmdTimezone(ctx context.Context, chatID int64, user *domain.User, args string) {
	if args == "" {
		b.reply(chatID, fmt.Sprintf("Your timezone is %s. Change it with /tz Europe/Berlin", html.EscapeString(user.Timezone)))
		return
	}
	if err := b.users.SetTimezone(ctx, user, args); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("🌍 Timezone set to %s.", html.EscapeString(user.Timezone)))
}

func (b *Bot) cmdExport(ctx context.Context, chatID int64, user *domain.User) {
	schedules, err := b.schedules.ListActive(ctx, user)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(schedules) == 0 {
		b.reply(chatID, "No active medications to export.")
		return
	}

	data, err := b.calendar.ExportICS(user, schedules)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if err := b.sendDocument(chatID, "medications.ics", data, "📅 Import this file into your calendar app."); err != nil {
		b.log.Error("failed to send calendar export", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(chatID, textGenericError)
	}
}

func (b *Bot) cmdSync(ctx context.Context, chatID int64, user *domain.User) {
	if !b.calendar.IsConfigured() {
		b.reply(chatID, "Calendar sync is not configured. Use /export instead.")
		return
	}

	schedules, err := b.schedules.ListActive(ctx, user)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	n, err := b.calendar.Publish(ctx, user, schedules)
	if err != nil {
		b.log.Error("calendar sync failed", zap.Int64("user_id", user.ID), zap.Int("published", n), zap.Error(err))
		b.reply(chatID, textGenericError)
		return
	}
	b.reply(chatID, fmt.Sprintf("📅 Published %d dose event(s) to the calendar.", n))
}

func parseScheduleID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(fmt.Sprintf("invalid medication number %q", s))
	}
	return id, nil
}
