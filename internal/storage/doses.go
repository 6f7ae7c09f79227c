package storage

import (
	"context"
	"strings"
	"time"

	"github.com/med-timely/bot/internal/domain"
)

// DoseFilter selects dose records of one schedule taken in [From, To).
type DoseFilter struct {
	ScheduleID    int64
	From          time.Time
	To            time.Time
	ConfirmedOnly bool
	NewestFirst   bool
}

func (s *Storage) CreateDose(ctx context.Context, d *domain.Dose) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO doses (user_id, schedule_id, taken_at, confirmed) VALUES (?, ?, ?, ?)`,
		d.UserID, d.ScheduleID, unix(d.TakenAt), d.Confirmed,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	d.ID = id
	return nil
}

func (s *Storage) UpdateDose(ctx context.Context, d *domain.Dose) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE doses SET taken_at = ?, confirmed = ? WHERE id = ?`,
		unix(d.TakenAt), d.Confirmed, d.ID)
	return err
}

func (s *Storage) ListDoses(ctx context.Context, f DoseFilter) ([]domain.Dose, error) {
	where := []string{"schedule_id = ?"}
	args := []any{f.ScheduleID}
	if !f.From.IsZero() {
		where = append(where, "taken_at >= ?")
		args = append(args, unix(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "taken_at < ?")
		args = append(args, unix(f.To))
	}
	if f.ConfirmedOnly {
		where = append(where, "confirmed = 1")
	}
	order := "ASC"
	if f.NewestFirst {
		order = "DESC"
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, schedule_id, taken_at, confirmed FROM doses
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY taken_at `+order+`, id `+order,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doses []domain.Dose
	for rows.Next() {
		var d domain.Dose
		var taken int64
		if err := rows.Scan(&d.ID, &d.UserID, &d.ScheduleID, &taken, &d.Confirmed); err != nil {
			return nil, err
		}
		d.TakenAt = fromUnix(taken)
		doses = append(doses, d)
	}
	return doses, rows.Err()
}
