package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SQLiteRepository implements ports.Store on database/sql.
type SQLiteRepository struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

var _ ports.Store = (*SQLiteRepository)(nil)

// DSN returns the connection string used for dbPath: foreign keys on,
// a busy timeout for concurrent evaluations and write-locking transactions.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an already migrated database handle.
func NewWithDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, q: db}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil && r.tx == nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx implements ports.Store.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(ports.Store) error) error {
	return r.inTx(ctx, func(tr *SQLiteRepository) error { return fn(tr) })
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*SQLiteRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&SQLiteRepository{db: r.db, q: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EnsureUser implements ports.UserStore
func (r *SQLiteRepository) EnsureUser(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id.String(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// ListUserIDs implements ports.UserStore
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(core.DateLayout, s)
}

func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseNullableID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// notFound maps sql.ErrNoRows onto core.ErrNotFound.
func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func expectAffected(res sql.Result, what string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}

// decodeErr accumulates the first parse failure while scanning a row.
type decodeErr struct{ err error }

func (d *decodeErr) id(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("parse id %q: %w", s, err)
	}
	return id
}

func (d *decodeErr) nullID(ns sql.NullString) *uuid.UUID {
	id, err := parseNullableID(ns)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("parse id %q: %w", ns.String, err)
	}
	return id
}

func (d *decodeErr) decimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v
}

func (d *decodeErr) date(s string) core.Date {
	v, err := parseDate(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("parse date %q: %w", s, err)
	}
	return v
}

func (d *decodeErr) time(s string) time.Time {
	v, err := parseTime(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("parse time %q: %w", s, err)
	}
	return v
}
