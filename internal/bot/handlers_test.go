package bot

import (
	"context"
	"fmt"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_AsksForPrivacyConsent(t *testing.T) {
	b := setupBot(t, nil)

	b.command(100, "/start")

	msg := b.client.lastMessage(t)
	assert.Contains(t, msg.Text, "Privacy")
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "privacy:accept", *kb.InlineKeyboard[0][0].CallbackData)

	// Other commands are blocked until the terms are accepted.
	b.command(100, "/list")
	assert.Contains(t, b.client.lastMessage(t).Text, "Privacy")
}

func TestPrivacyAccept(t *testing.T) {
	b := setupBot(t, nil)

	b.command(100, "/start")
	b.callback(100, "privacy:accept")

	u, err := b.users.Get(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, u.PrivacyAccepted)
	assert.Contains(t, b.client.lastMessage(t).Text, "Hi, Anna")

	b.command(100, "/start")
	assert.Contains(t, b.client.lastMessage(t).Text, "Welcome back")
}

func TestHelpWithoutConsent(t *testing.T) {
	b := setupBot(t, nil)

	b.command(100, "/help")
	assert.Contains(t, b.client.lastMessage(t).Text, "/schedule")
}

func TestScheduleAndList(t *testing.T) {
	b := setupBot(t, nil)
	b.registered(t, 100)

	b.command(100, "/schedule Aspirin | 1 tablet | 3 | 5 | after meals")
	msg := b.client.lastMessage(t)
	assert.Contains(t, msg.Text, "Medication added")
	assert.Contains(t, msg.Text, "Aspirin")
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)

	b.command(100, "/list")
	assert.Contains(t, b.client.lastMessage(t).Text, "Aspirin")
}

func TestSchedule_InvalidArgs(t *testing.T) {
	b := setupBot(t, nil)
	b.registered(t, 100)

	b.command(100, "/schedule Aspirin | 1 tablet | many")
	assert.Contains(t, b.client.lastMessage(t).Text, "times per day must be a number")

	b.command(100, "/schedule Aspirin | 1 tablet | 0")
	assert.Contains(t, b.client.lastMessage(t).Text, "❌")
}

func TestTaken_LogsOnceThenReportsRecorded(t *testing.T) {
	b := setupBot(t, nil)
	u := b.registered(t, 100)

	b.command(100, "/schedule Vitamin D | 1 capsule | 1")
	schedules, err := b.schedules.ListActive(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	id := schedules[0].ID

	b.command(100, fmt.Sprintf("/taken %d", id))
	assert.Contains(t, b.client.lastMessage(t).Text, "logged")

	b.command(100, fmt.Sprintf("/taken %d", id))
	assert.Contains(t, b.client.lastMessage(t).Text, "already recorded")

	b.callback(100, fmt.Sprintf("dose:%d", id))
	cb := b.client.lastCallback(t)
	assert.True(t, cb.ShowAlert)
	assert.Contains(t, cb.Text, "already recorded")
}

func TestTaken_OffersKeyboard(t *testing.T) {
	b := setupBot(t, nil)
	u := b.registered(t, 100)

	b.command(100, "/schedule Aspirin | 1 tablet | 3")
	schedules, err := b.schedules.ListActive(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, schedules, 1)

	b.command(100, "/taken")
	msg := b.client.lastMessage(t)
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("dose:%d", schedules[0].ID), *kb.InlineKeyboard[0][0].CallbackData)

	b.callback(100, fmt.Sprintf("dose:%d", schedules[0].ID))
	assert.Contains(t, b.client.lastMessage(t).Text, "logged")

	b.command(100, "/taken")
	assert.Contains(t, b.client.lastMessage(t).Text, "Nothing to take")
}

func TestStop_OtherUsersScheduleIsNotFound(t *testing.T) {
	b := setupBot(t, nil)
	anna := b.registered(t, 100)
	b.registered(t, 200)

	b.command(100, "/schedule Aspirin | 1 tablet | 3")
	schedules, err := b.schedules.ListActive(context.Background(), anna)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	id := schedules[0].ID

	b.command(200, fmt.Sprintf("/stop %d", id))
	assert.Contains(t, b.client.lastMessage(t).Text, "not found")

	b.callback(100, fmt.Sprintf("stop:%d", id))
	assert.Contains(t, b.client.lastMessage(t).Text, "stopped")

	b.command(100, fmt.Sprintf("/taken %d", id))
	assert.Contains(t, b.client.lastMessage(t).Text, "ended")
}

func TestSettingsCommands(t *testing.T) {
	b := setupBot(t, nil)
	b.registered(t, 100)

	b.command(100, "/tz Mars/Olympus")
	assert.Contains(t, b.client.lastMessage(t).Text, "unknown timezone")

	b.command(100, "/tz Europe/Moscow")
	assert.Contains(t, b.client.lastMessage(t).Text, "Europe/Moscow")

	b.command(100, "/hours 7 21")
	assert.Contains(t, b.client.lastMessage(t).Text, "07:00 and 21:00")

	b.command(100, "/hours 21 7")
	assert.Contains(t, b.client.lastMessage(t).Text, "❌")

	b.command(100, "/me")
	msg := b.client.lastMessage(t).Text
	assert.Contains(t, msg, "Europe/Moscow")
	assert.Contains(t, msg, "07:00")
}

func TestHistory(t *testing.T) {
	b := setupBot(t, nil)
	b.registered(t, 100)

	b.command(100, "/history 0")
	assert.Contains(t, b.client.lastMessage(t).Text, "❌")

	b.command(100, "/history")
	assert.Contains(t, b.client.lastMessage(t).Text, "No medications in the last 7 day(s)")
}

func TestExportAndSync(t *testing.T) {
	b := setupBot(t, nil)
	b.registered(t, 100)

	b.command(100, "/export")
	assert.Contains(t, b.client.lastMessage(t).Text, "No active medications")

	b.command(100, "/schedule Aspirin | 1 tablet | 2")
	b.command(100, "/export")

	b.client.mu.Lock()
	doc, ok := b.client.sent[len(b.client.sent)-1].(tgbotapi.DocumentConfig)
	b.client.mu.Unlock()
	require.True(t, ok)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "medications.ics", file.Name)
	assert.Contains(t, string(file.Bytes), "BEGIN:VCALENDAR")
	assert.Contains(t, string(file.Bytes), "RRULE:FREQ=DAILY")

	b.command(100, "/sync")
	assert.Contains(t, b.client.lastMessage(t).Text, "not configured")
}

func TestUnknownInput(t *testing.T) {
	b := setupBot(t, nil)
	b.registered(t, 100)

	b.command(100, "/dance")
	assert.Contains(t, b.client.lastMessage(t).Text, "Unknown command")

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 100},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: "hello",
	}})
	assert.Contains(t, b.client.lastMessage(t).Text, "commands only")
}

func TestBadCallback(t *testing.T) {
	b := setupBot(t, nil)

	b.callback(100, "dose:abc")
	assert.Equal(t, "Unknown action", b.client.lastCallback(t).Text)
}
