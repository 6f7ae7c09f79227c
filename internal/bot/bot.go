package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/med-timely/bot/config"
	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/metrics"
	"github.com/med-timely/bot/internal/service"
	"github.com/med-timely/bot/internal/storage"
)

const webhookPath = "/bot"

// sender is the part of the Telegram API the bot talks through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Services are the application services the bot dispatches to.
type Services struct {
	Users     *service.UserService
	Schedules *service.ScheduleService
	Calendar  *service.CalendarService
}

type Bot struct {
	api       *tgbotapi.BotAPI
	client    sender
	cfg       *config.Config
	storage   *storage.Storage
	users     *service.UserService
	schedules *service.ScheduleService
	calendar  *service.CalendarService
	metrics   *metrics.Metrics
	log       *zap.Logger
	server    *http.Server
	updates   chan tgbotapi.Update
}

func New(cfg *config.Config, store *storage.Storage, svc Services, m *metrics.Metrics, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Info("authorized", zap.String("username", api.Self.UserName))

	b := newBot(api, cfg, store, svc, m, log)
	b.api = api
	b.setCommands()
	return b, nil
}

func newBot(client sender, cfg *config.Config, store *storage.Storage, svc Services, m *metrics.Metrics, log *zap.Logger) *Bot {
	return &Bot{
		client:    newBreakerSender(client, log),
		cfg:       cfg,
		storage:   store,
		users:     svc.Users,
		schedules: svc.Schedules,
		calendar:  svc.Calendar,
		metrics:   m,
		log:       log,
		updates:   make(chan tgbotapi.Update, 100),
	}
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "schedule", Description: "💊 Add a medication"},
		{Command: "list", Description: "📋 Active medications"},
		{Command: "taken", Description: "✅ Log a dose"},
		{Command: "history", Description: "📊 Adherence report"},
		{Command: "stop", Description: "🛑 Stop a medication"},
		{Command: "me", Description: "👤 Profile"},
		{Command: "help", Description: "❓ Help"},
	}

	if _, err := b.client.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.log.Warn("failed to set commands", zap.Error(err))
	}
}

func (b *Bot) SetupWebhook() error {
	webhookURL := b.cfg.WebhookURL + webhookPath

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	if _, err := b.client.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		b.log.Warn("webhook last error", zap.String("message", info.LastErrorMessage))
	}

	b.log.Info("webhook set", zap.String("url", webhookURL))
	return nil
}

// Start serves HTTP and handles updates until ctx is done. Updates arrive
// through the webhook route when WEBHOOK_URL is set, otherwise by long
// polling.
func (b *Bot) Start(ctx context.Context) error {
	b.server = &http.Server{
		Addr:              ":" + b.cfg.ServerPort,
		Handler:           b.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		b.log.Info("starting http server", zap.String("port", b.cfg.ServerPort))
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Error("http server error", zap.Error(err))
		}
	}()

	if b.cfg.WebhookURL == "" {
		if _, err := b.client.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			b.log.Warn("failed to delete webhook", zap.Error(err))
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		polled := b.api.GetUpdatesChan(u)
		defer b.api.StopReceivingUpdates()
		go b.forward(ctx, polled)
		b.log.Info("long polling started")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-b.updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) forward(ctx context.Context, polled tgbotapi.UpdatesChannel) {
	for update := range polled {
		select {
		case b.updates <- update:
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.client.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(keyboard.InlineKeyboard) > 0 {
		msg.ReplyMarkup = keyboard
	}
	_, err := b.client.Send(msg)
	return err
}

// SendReminder sends one message listing the schedules with a confirm
// button for each.
func (b *Bot) SendReminder(_ context.Context, user *domain.User, schedules []*domain.Schedule) error {
	return b.SendMessageWithKeyboard(user.TelegramID, service.FormatReminder(schedules), doseKeyboard(schedules))
}

func (b *Bot) sendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	_, err := b.client.Send(doc)
	return err
}

func (b *Bot) answerCallback(id, text string, alert bool) {
	cb := tgbotapi.NewCallback(id, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(id, text)
	}
	if _, err := b.client.Request(cb); err != nil {
		b.log.Warn("failed to answer callback", zap.Error(err))
	}
}
