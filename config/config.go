package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/med-timely/bot/internal/domain"
)

type Config struct {
	TelegramToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	DatabasePath  string `envconfig:"DATABASE_PATH" default:"./data/medtimely.db"`

	DefaultTimezone string `envconfig:"DEFAULT_TIMEZONE" default:"UTC"`
	DefaultDayStart string `envconfig:"DEFAULT_DAY_START" default:"08:00"`
	DefaultDayEnd   string `envconfig:"DEFAULT_DAY_END" default:"20:00"`

	ReminderSpec string  `envconfig:"REMINDER_SPEC" default:"*/15 * * * *"`
	SendRate     float64 `envconfig:"SEND_RATE" default:"20"` // messages per second

	WebhookURL string `envconfig:"WEBHOOK_URL"` // empty: long polling
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error

	APIUsername string `envconfig:"API_USERNAME"`
	APIPassword string `envconfig:"API_PASSWORD"`

	CalDAVURL      string `envconfig:"CALDAV_URL"`
	CalDAVUsername string `envconfig:"CALDAV_USERNAME"`
	CalDAVPassword string `envconfig:"CALDAV_PASSWORD"`
	CalDAVCalendar string `envconfig:"CALDAV_CALENDAR"`

	// Parsed from the fields above by Load.
	DefaultWindow domain.DaylightWindow `ignored:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	}
	if _, err := domain.LoadTimezone(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}

	start, err := domain.ParseTimeOfDay(c.DefaultDayStart)
	if err != nil {
		return fmt.Errorf("invalid DEFAULT_DAY_START: %w", err)
	}
	end, err := domain.ParseTimeOfDay(c.DefaultDayEnd)
	if err != nil {
		return fmt.Errorf("invalid DEFAULT_DAY_END: %w", err)
	}
	c.DefaultWindow = domain.DaylightWindow{Start: start, End: end}
	if err := c.DefaultWindow.Validate(); err != nil {
		return fmt.Errorf("invalid default daylight window: %w", err)
	}

	if _, err := cron.ParseStandard(c.ReminderSpec); err != nil {
		return fmt.Errorf("invalid REMINDER_SPEC: %w", err)
	}
	if c.SendRate <= 0 {
		return fmt.Errorf("SEND_RATE must be positive")
	}
	return nil
}

// APIEnabled reports whether the JSON API has credentials configured.
func (c *Config) APIEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}

// CalDAVEnabled reports whether dose events can be published to CalDAV.
func (c *Config) CalDAVEnabled() bool {
	return c.CalDAVURL != "" && c.CalDAVUsername != "" && c.CalDAVPassword != "" && c.CalDAVCalendar != ""
}
