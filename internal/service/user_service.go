package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/storage"
)

// UserDefaults are applied to users on first contact.
type UserDefaults struct {
	Timezone string
	Window   domain.DaylightWindow
}

type UserService struct {
	storage  *storage.Storage
	defaults UserDefaults
	log      *zap.Logger
}

func NewUserService(s *storage.Storage, defaults UserDefaults, log *zap.Logger) *UserService {
	return &UserService{storage: s, defaults: defaults, log: log}
}

// Identity is what the chat transport knows about a user.
type Identity struct {
	TelegramID   int64
	Name         string
	Username     string
	LanguageCode string
}

// Register returns the user for the identity, creating it on first contact.
// created reports whether a new user was stored.
func (s *UserService) Register(ctx context.Context, id Identity) (user *domain.User, created bool, err error) {
	user, err = s.storage.GetUserByTelegramID(ctx, id.TelegramID)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}

	if user != nil {
		if user.Name != id.Name || user.Username != id.Username || user.LanguageCode != id.LanguageCode {
			if err := s.storage.UpdateUserProfile(ctx, user.ID, id.Name, id.Username, id.LanguageCode); err != nil {
				return nil, false, fmt.Errorf("update profile: %w", err)
			}
			user.Name, user.Username, user.LanguageCode = id.Name, id.Username, id.LanguageCode
		}
		return user, false, nil
	}

	user = &domain.User{
		TelegramID:   id.TelegramID,
		Name:         id.Name,
		Username:     id.Username,
		LanguageCode: id.LanguageCode,
		Timezone:     s.defaults.Timezone,
		DayStart:     s.defaults.Window.Start,
		DayEnd:       s.defaults.Window.End,
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.Int64("telegram_id", user.TelegramID))
	return user, true, nil
}

// Get returns the user with the given Telegram ID.
func (s *UserService) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	user, err := s.storage.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) AcceptPrivacy(ctx context.Context, user *domain.User) error {
	if err := s.storage.AcceptPrivacy(ctx, user.ID); err != nil {
		return fmt.Errorf("accept privacy: %w", err)
	}
	user.PrivacyAccepted = true
	return nil
}

// SetTimezone stores an IANA timezone name after checking it resolves.
func (s *UserService) SetTimezone(ctx context.Context, user *domain.User, tz string) error {
	if tz == "" {
		return domain.NewValidationError("timezone is required")
	}
	if _, err := domain.LoadTimezone(tz); err != nil {
		return domain.NewValidationError(fmt.Sprintf("unknown timezone %q", tz))
	}
	if err := s.storage.UpdateUserTimezone(ctx, user.ID, tz); err != nil {
		return fmt.Errorf("update timezone: %w", err)
	}
	user.Timezone = tz
	return nil
}

// SetDaylightHours changes the reminder window to [start:00, end:00].
func (s *UserService) SetDaylightHours(ctx context.Context, user *domain.User, start, end int) error {
	if start < 0 || start > 23 || end < 0 || end > 23 {
		return domain.NewValidationError("hours must be between 0 and 23")
	}
	w := domain.DaylightWindow{Start: domain.Clock(start, 0), End: domain.Clock(end, 0)}
	if err := w.Validate(); err != nil {
		return err
	}
	if err := s.storage.UpdateUserDaylight(ctx, user.ID, w); err != nil {
		return fmt.Errorf("update daylight hours: %w", err)
	}
	user.DayStart, user.DayEnd = w.Start, w.End
	return nil
}
