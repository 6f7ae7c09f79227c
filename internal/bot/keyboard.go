package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/med-timely/bot/internal/domain"
)

// Callback actions.
const (
	actionDose    = "dose"
	actionStop    = "stop"
	actionPrivacy = "privacy"

	privacyAccept = "accept"
)

const buttonLabelLen = 30

// actionKeyboard renders one button per item on its own row. label and
// action map an item to the button text and its callback data.
func actionKeyboard[T any](items []T, label func(T) string, action func(T) string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items))
	for _, item := range items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label(item), action(item)),
		))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func callbackData(action string, id int64) string {
	return fmt.Sprintf("%s:%d", action, id)
}

// parseCallback splits "action:arg". For dose and stop actions arg must be
// a schedule ID.
func parseCallback(data string) (action string, id int64, err error) {
	action, arg, ok := strings.Cut(data, ":")
	if !ok || arg == "" {
		return "", 0, fmt.Errorf("malformed callback %q", data)
	}

	switch action {
	case actionDose, actionStop:
		id, err = strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return "", 0, fmt.Errorf("invalid schedule id in callback %q", data)
		}
		return action, id, nil
	case actionPrivacy:
		if arg != privacyAccept {
			return "", 0, fmt.Errorf("unknown privacy answer %q", arg)
		}
		return action, 0, nil
	default:
		return "", 0, fmt.Errorf("unknown callback action %q", action)
	}
}

func scheduleLabel(sc *domain.Schedule) string {
	return truncate(fmt.Sprintf("%s (%s)", sc.DrugName, sc.Dose), buttonLabelLen)
}

// doseKeyboard has a confirm button per schedule.
func doseKeyboard(schedules []*domain.Schedule) tgbotapi.InlineKeyboardMarkup {
	return actionKeyboard(schedules,
		func(sc *domain.Schedule) string { return "✅ " + scheduleLabel(sc) },
		func(sc *domain.Schedule) string { return callbackData(actionDose, sc.ID) },
	)
}

func stopKeyboard(schedules []*domain.Schedule) tgbotapi.InlineKeyboardMarkup {
	return actionKeyboard(schedules,
		func(sc *domain.Schedule) string { return "🛑 " + scheduleLabel(sc) },
		func(sc *domain.Schedule) string { return callbackData(actionStop, sc.ID) },
	)
}

func privacyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ I agree", actionPrivacy+":"+privacyAccept),
		),
	)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
