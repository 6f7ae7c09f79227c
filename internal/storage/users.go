package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/med-timely/bot/internal/domain"
)

const userColumns = `id, telegram_id, name, username, language_code, timezone, day_start_m, day_end_m, privacy_accepted, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	u := &domain.User{}
	var start, end int
	var created int64
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Name, &u.Username, &u.LanguageCode, &u.Timezone,
		&start, &end, &u.PrivacyAccepted, &created); err != nil {
		return nil, err
	}
	u.DayStart = domain.Clock(0, start)
	u.DayEnd = domain.Clock(0, end)
	u.CreatedAt = fromUnix(created)
	return u, nil
}

func (s *Storage) CreateUser(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO users (telegram_id, name, username, language_code, timezone, day_start_m, day_end_m, privacy_accepted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.TelegramID, u.Name, u.Username, u.LanguageCode, u.Timezone,
		u.DayStart.Minutes(), u.DayEnd.Minutes(), u.PrivacyAccepted, unix(u.CreatedAt),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	return nil
}

func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// UpdateUserProfile refreshes the Telegram-provided name fields.
func (s *Storage) UpdateUserProfile(ctx context.Context, id int64, name, username, languageCode string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE users SET name = ?, username = ?, language_code = ? WHERE id = ?`,
		name, username, languageCode, id)
	return err
}

func (s *Storage) UpdateUserTimezone(ctx context.Context, id int64, tz string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE users SET timezone = ? WHERE id = ?`, tz, id)
	return err
}

func (s *Storage) UpdateUserDaylight(ctx context.Context, id int64, w domain.DaylightWindow) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE users SET day_start_m = ?, day_end_m = ? WHERE id = ?`,
		w.Start.Minutes(), w.End.Minutes(), id)
	return err
}

func (s *Storage) AcceptPrivacy(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, `UPDATE users SET privacy_accepted = 1 WHERE id = ?`, id)
	return err
}
