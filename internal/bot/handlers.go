package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/service"
)

const (
	textGenericError    = "❌ Something went wrong, please try again later."
	textInvalidTimezone = "⚠️ Your timezone setting is invalid. Set it again with /tz, e.g. /tz Europe/Berlin"
	textPrivacy         = `🔒 <b>Privacy</b>

To remind you about medications I store your Telegram name, timezone, reminder hours, the medications you add and the times you confirm doses. Nothing is shared with third parties.

Tap the button below to continue.`
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func identityOf(from *tgbotapi.User) service.Identity {
	name := from.FirstName
	if from.LastName != "" {
		name += " " + from.LastName
	}
	return service.Identity{
		TelegramID:   from.ID,
		Name:         name,
		Username:     from.UserName,
		LanguageCode: from.LanguageCode,
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if !msg.IsCommand() {
		if strings.TrimSpace(msg.Text) != "" {
			b.reply(chatID, "I understand commands only. /help for the list")
		}
		return
	}

	user, _, err := b.users.Register(ctx, identityOf(msg.From))
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	cmd := msg.Command()
	if !user.PrivacyAccepted && cmd != "start" && cmd != "help" {
		b.sendPrivacy(chatID)
		return
	}

	b.handleCommand(ctx, msg, user)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, id, err := parseCallback(cb.Data)
	if err != nil {
		b.log.Warn("bad callback", zap.String("data", cb.Data), zap.Error(err))
		b.answerCallback(cb.ID, "Unknown action", false)
		return
	}

	user, _, err := b.users.Register(ctx, identityOf(cb.From))
	if err != nil {
		b.answerCallback(cb.ID, "", false)
		b.replyError(chatID, err)
		return
	}

	if action == actionPrivacy {
		b.acceptPrivacy(ctx, cb, user)
		return
	}
	if !user.PrivacyAccepted {
		b.answerCallback(cb.ID, "", false)
		b.sendPrivacy(chatID)
		return
	}

	switch action {
	case actionDose:
		b.logDose(ctx, chatID, user, id, cb.ID)
	case actionStop:
		b.answerCallback(cb.ID, "", false)
		b.stopSchedule(ctx, chatID, user, id)
	}
}

func (b *Bot) acceptPrivacy(ctx context.Context, cb *tgbotapi.CallbackQuery, user *domain.User) {
	chatID := cb.Message.Chat.ID
	if !user.PrivacyAccepted {
		if err := b.users.AcceptPrivacy(ctx, user); err != nil {
			b.answerCallback(cb.ID, "", false)
			b.replyError(chatID, err)
			return
		}
	}
	b.answerCallback(cb.ID, "Thank you!", false)

	edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, "🔒 Privacy terms accepted.")
	if _, err := b.client.Send(edit); err != nil {
		b.log.Warn("failed to edit message", zap.Error(err))
	}
	b.reply(chatID, welcomeText(user))
}

// logDose confirms the current dose. callbackID is empty when called from
// a command.
func (b *Bot) logDose(ctx context.Context, chatID int64, user *domain.User, scheduleID int64, callbackID string) {
	res, err := b.schedules.LogDose(ctx, user, scheduleID)
	if err != nil {
		if callbackID != "" {
			b.answerCallback(callbackID, "", false)
		}
		b.replyError(chatID, err)
		return
	}

	drug := html.EscapeString(res.Schedule.DrugName)
	if res.Outcome == service.OutcomeAlreadyRecorded {
		text := fmt.Sprintf("This dose of %s is already recorded.", res.Schedule.DrugName)
		if callbackID != "" {
			b.answerCallback(callbackID, text, true)
			return
		}
		b.reply(chatID, "ℹ️ "+html.EscapeString(text))
		return
	}

	if callbackID != "" {
		b.answerCallback(callbackID, "✅ Logged", false)
	}

	text := fmt.Sprintf("✅ <b>%s</b> logged", drug)
	if loc, err := user.Location(); err == nil {
		text += " at " + res.Dose.TakenAt.In(loc).Format("15:04")
	}
	b.reply(chatID, text)
}

func (b *Bot) stopSchedule(ctx context.Context, chatID int64, user *domain.User, scheduleID int64) {
	sc, err := b.schedules.Stop(ctx, user, scheduleID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("🛑 <b>%s</b> stopped. No more reminders for it.", html.EscapeString(sc.DrugName)))

	if err := b.calendar.Unpublish(ctx, sc); err != nil {
		b.log.Warn("failed to remove calendar events",
			zap.Int64("schedule_id", sc.ID),
			zap.Error(err))
	}
}

func (b *Bot) sendPrivacy(chatID int64) {
	if err := b.SendMessageWithKeyboard(chatID, textPrivacy, privacyKeyboard()); err != nil {
		b.log.Warn("failed to send privacy notice", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.SendMessage(chatID, text); err != nil {
		b.log.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// replyError shows domain errors to the user and logs everything else.
func (b *Bot) replyError(chatID int64, err error) {
	var appErr *domain.AppError
	switch {
	case errors.Is(err, domain.ErrInvalidTimezone):
		b.log.Error("invalid user timezone", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(chatID, textInvalidTimezone)
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrScheduleEnded):
		errors.As(err, &appErr)
		b.reply(chatID, "❌ "+html.EscapeString(appErr.Message))
	default:
		b.log.Error("request failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(chatID, textGenericError)
	}
}
