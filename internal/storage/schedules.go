package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/med-timely/bot/internal/domain"
)

const scheduleColumns = `s.id, s.user_id, s.drug_name, s.dose, s.doses_per_day, s.duration_days, s.comment, s.start_at, s.end_at, s.created_at`

// ActiveFilter selects schedules that are running at Now.
type ActiveFilter struct {
	UserID int64 // 0 means all users
	Now    time.Time
	// NotTaken keeps only schedules with no confirmed dose in the last
	// half dose interval of their owner's daylight window.
	NotTaken bool
}

func scanSchedule(row interface{ Scan(...any) error }) (*domain.Schedule, error) {
	sc := &domain.Schedule{}
	var duration, end sql.NullInt64
	var start, created int64
	if err := row.Scan(&sc.ID, &sc.UserID, &sc.DrugName, &sc.Dose, &sc.DosesPerDay,
		&duration, &sc.Comment, &start, &end, &created); err != nil {
		return nil, err
	}
	sc.StartAt = fromUnix(start)
	sc.CreatedAt = fromUnix(created)
	if duration.Valid {
		d := int(duration.Int64)
		sc.Duration = &d
	}
	if end.Valid {
		e := fromUnix(end.Int64)
		sc.EndAt = &e
	}
	return sc, nil
}

func (s *Storage) CreateSchedule(ctx context.Context, sc *domain.Schedule) error {
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	var duration sql.NullInt64
	if sc.Duration != nil {
		duration = sql.NullInt64{Int64: int64(*sc.Duration), Valid: true}
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO schedules (user_id, drug_name, dose, doses_per_day, duration_days, comment, start_at, end_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.UserID, sc.DrugName, sc.Dose, sc.DosesPerDay, duration, sc.Comment,
		unix(sc.StartAt), nullUnix(sc.EndAt), unix(sc.CreatedAt),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	sc.ID = id
	return nil
}

func (s *Storage) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	sc, err := scanSchedule(s.q.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

// GetUserSchedule returns the schedule only if it belongs to userID.
func (s *Storage) GetUserSchedule(ctx context.Context, userID, id int64) (*domain.Schedule, error) {
	sc, err := scanSchedule(s.q.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules s WHERE s.id = ? AND s.user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

func (s *Storage) ListActiveSchedules(ctx context.Context, f ActiveFilter) ([]*domain.Schedule, error) {
	now := unix(f.Now)
	where := []string{"s.start_at <= ?", "(s.end_at IS NULL OR s.end_at >= ?)"}
	args := []any{now, now}

	if f.UserID != 0 {
		where = append(where, "s.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.NotTaken {
		where = append(where, `NOT EXISTS (
			SELECT 1 FROM doses d
			WHERE d.schedule_id = s.id AND d.confirmed = 1
			  AND d.taken_at > ? - ((u.day_end_m - u.day_start_m) * 60 / 2 / s.doses_per_day)
		)`)
		args = append(args, now)
	}

	return s.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules s JOIN users u ON u.id = s.user_id
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY s.user_id, s.start_at, s.id`,
		args...)
}

// ListSchedulesInRange returns the user's schedules that overlap [from, to].
func (s *Storage) ListSchedulesInRange(ctx context.Context, userID int64, from, to time.Time) ([]*domain.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules s
		 WHERE s.user_id = ? AND s.start_at <= ? AND (s.end_at IS NULL OR s.end_at >= ?)
		 ORDER BY s.start_at, s.id`,
		userID, unix(to), unix(from))
}

// StopSchedule ends the schedule at the given instant.
func (s *Storage) StopSchedule(ctx context.Context, id int64, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE schedules SET end_at = ? WHERE id = ?`, unix(at), id)
	return err
}

func (s *Storage) querySchedules(ctx context.Context, query string, args ...any) ([]*domain.Schedule, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}
