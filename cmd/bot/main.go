package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/med-timely/bot/config"
	"github.com/med-timely/bot/internal/bot"
	"github.com/med-timely/bot/internal/clients/caldav"
	"github.com/med-timely/bot/internal/logger"
	"github.com/med-timely/bot/internal/metrics"
	"github.com/med-timely/bot/internal/scheduler"
	"github.com/med-timely/bot/internal/service"
	"github.com/med-timely/bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := storage.New(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal("failed to init storage", zap.Error(err))
	}
	defer store.Close()

	m := metrics.New()

	userSvc := service.NewUserService(store, service.UserDefaults{
		Timezone: cfg.DefaultTimezone,
		Window:   cfg.DefaultWindow,
	}, log)
	scheduleSvc := service.NewScheduleService(store, m, log)
	reminderSvc := service.NewReminderService(store, scheduleSvc, log)

	var calClient *caldav.Client
	if cfg.CalDAVEnabled() {
		calClient = caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendar)
	}
	calendarSvc := service.NewCalendarService(calClient, log)
	if calendarSvc.IsConfigured() {
		checkCtx, checkCancel := context.WithTimeout(context.Background(), 15*time.Second)
		cals, err := calendarSvc.Calendars(checkCtx)
		checkCancel()
		if err != nil {
			log.Warn("caldav discovery failed", zap.Error(err))
		} else {
			log.Info("caldav calendars discovered", zap.Int("count", len(cals)))
		}
	}

	tgBot, err := bot.New(cfg, store, bot.Services{
		Users:     userSvc,
		Schedules: scheduleSvc,
		Calendar:  calendarSvc,
	}, m, log)
	if err != nil {
		log.Fatal("failed to init bot", zap.Error(err))
	}

	if cfg.WebhookURL != "" {
		if err := tgBot.SetupWebhook(); err != nil {
			log.Fatal("failed to setup webhook", zap.Error(err))
		}
	}

	sched := scheduler.New(cfg, reminderSvc, m, log)
	sched.SetSender(tgBot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Error("scheduler error", zap.Error(err))
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			log.Error("bot error", zap.Error(err))
		}
	}()

	log.Info("medtimely bot started",
		zap.String("reminder_spec", cfg.ReminderSpec),
		zap.Bool("webhook", cfg.WebhookURL != ""),
		zap.Bool("api", cfg.APIEnabled()),
		zap.Bool("caldav", cfg.CalDAVEnabled()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop bot", zap.Error(err))
	}

	log.Info("medtimely bot stopped")
}
