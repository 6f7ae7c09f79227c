package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	txAttempts = 3
	txBackoff  = 50 * time.Millisecond
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage is the SQLite store. A Storage handed to a WithTx callback is
// bound to that transaction; all of its methods run inside it.
type Storage struct {
	db  *sql.DB
	q   querier
	log *zap.Logger
}

func New(dbPath string, log *zap.Logger) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so a
	// read-then-write transaction cannot interleave with another writer.
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, q: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER UNIQUE NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			language_code TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT 'UTC',
			day_start_m INTEGER NOT NULL DEFAULT 480,
			day_end_m INTEGER NOT NULL DEFAULT 1200,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			drug_name TEXT NOT NULL,
			dose TEXT NOT NULL,
			doses_per_day INTEGER NOT NULL CHECK (doses_per_day > 0),
			duration_days INTEGER,
			comment TEXT NOT NULL DEFAULT '',
			start_at INTEGER NOT NULL,
			end_at INTEGER,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_user_id ON schedules(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_end_at ON schedules(end_at)`,
		`CREATE TABLE IF NOT EXISTS doses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			schedule_id INTEGER NOT NULL,
			taken_at INTEGER NOT NULL,
			confirmed INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_doses_schedule_taken ON doses(schedule_id, taken_at)`,
		`ALTER TABLE users ADD COLUMN privacy_accepted INTEGER NOT NULL DEFAULT 0`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// WithTx runs fn inside a transaction. Calls on an already
// transaction-bound Storage join the outer transaction.
func (s *Storage) WithTx(ctx context.Context, fn func(tx *Storage) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Storage{db: s.db, q: tx, log: s.log}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithTxRetry is WithTx retried with exponential backoff while SQLite
// reports the database busy or locked. fn may run more than once and must
// not have side effects outside the transaction.
func (s *Storage) WithTxRetry(ctx context.Context, fn func(tx *Storage) error) error {
	delay := txBackoff
	for attempt := 1; ; attempt++ {
		err := s.WithTx(ctx, fn)
		if err == nil || !IsBusy(err) || attempt == txAttempts {
			return err
		}

		s.log.Warn("database busy, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// IsBusy reports whether err is a transient SQLite lock conflict.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func unix(t time.Time) int64 {
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
