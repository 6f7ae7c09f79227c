package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/med-timely/bot/config"
	"github.com/med-timely/bot/internal/clients/caldav"
	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/metrics"
	"github.com/med-timely/bot/internal/service"
	"github.com/med-timely/bot/internal/storage"
)

type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// lastMessage returns the most recent plain message.
func (f *fakeClient) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if msg, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			return msg
		}
	}
	t.Fatal("no message sent")
	return tgbotapi.MessageConfig{}
}

func (f *fakeClient) lastCallback(t *testing.T) tgbotapi.CallbackConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if cb, ok := f.requests[i].(tgbotapi.CallbackConfig); ok {
			return cb
		}
	}
	t.Fatal("no callback answered")
	return tgbotapi.CallbackConfig{}
}

type testBot struct {
	*Bot
	client *fakeClient
	store  *storage.Storage
}

func setupBot(t *testing.T, cfg *config.Config) *testBot {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if cfg == nil {
		cfg = &config.Config{ServerPort: "8080"}
	}
	m := metrics.New()
	log := zap.NewNop()
	schedules := service.NewScheduleService(store, m, log)
	svc := Services{
		Users: service.NewUserService(store, service.UserDefaults{
			Timezone: "UTC",
			Window:   domain.DaylightWindow{Start: domain.Clock(8, 0), End: domain.Clock(20, 0)},
		}, log),
		Schedules: schedules,
		Calendar:  service.NewCalendarService(caldav.NewClient("", "", "", ""), log),
	}

	client := &fakeClient{}
	return &testBot{Bot: newBot(client, cfg, store, svc, m, log), client: client, store: store}
}

func commandUpdate(from int64, text string) tgbotapi.Update {
	name, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, FirstName: "Anna"},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: from, FirstName: "Anna"},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: from}},
		Data:    data,
	}}
}

func (b *testBot) command(from int64, text string) {
	b.handleUpdate(context.Background(), commandUpdate(from, text))
}

func (b *testBot) callback(from int64, data string) {
	b.handleUpdate(context.Background(), callbackUpdate(from, data))
}

// registered returns a user who already accepted the privacy terms.
func (b *testBot) registered(t *testing.T, telegramID int64) *domain.User {
	t.Helper()
	b.command(telegramID, "/start")
	b.callback(telegramID, "privacy:accept")
	u, err := b.users.Get(context.Background(), telegramID)
	require.NoError(t, err)
	require.True(t, u.PrivacyAccepted)
	return u
}
