// Package sqlite persists categorized transactions in a single-file SQLite
// database. Rows are append-only.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvloznov/smart-budget/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is fixed-width so that text order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store is the SQLite-backed transaction store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// OpenDB opens the database file at path without touching its schema.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &domain.StorageError{Op: "open", Cause: err}
	}
	// A single connection serialises writers inside the process; SQLite's
	// own locking covers other processes.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &domain.StorageError{Op: "open", Cause: err}
	}
	return db, nil
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := Migrate(ctx, db, s.now); err != nil {
		db.Close()
		return nil, &domain.StorageError{Op: "migrate", Cause: err}
	}
	return s, nil
}

// DB exposes the underlying handle for migration tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists rec with category and returns the stored row with its
// assigned id and created_at.
func (s *Store) Insert(ctx context.Context, rec domain.TransactionRecord, category string) (domain.StoredTransaction, error) {
	createdAt := ceilMicro(s.now().UTC())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoredTransaction{}, &domain.StorageError{Op: "insert", Cause: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (description, merchant, amount, payment_method, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Description, rec.Merchant, rec.Amount, rec.PaymentMethod, category, createdAt.Format(timeLayout))
	if err != nil {
		return domain.StoredTransaction{}, &domain.StorageError{Op: "insert", Cause: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.StoredTransaction{}, &domain.StorageError{Op: "insert", Cause: err}
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, description, merchant, amount, payment_method, category, created_at
		FROM transactions WHERE id = ?`, id)
	stored, err := scanTransaction(row)
	if err != nil {
		return domain.StoredTransaction{}, &domain.StorageError{Op: "insert", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return domain.StoredTransaction{}, &domain.StorageError{Op: "insert", Cause: err}
	}
	return stored, nil
}

// List returns stored rows newest first. Rows sharing a created_at are
// ordered by id, highest first. An offset past the end yields an empty slice.
func (s *Store) List(ctx context.Context, limit, offset int) ([]domain.StoredTransaction, error) {
	if limit < 0 || offset < 0 {
		return nil, &domain.ValidationError{Field: "pagination", Reason: "limit and offset must be non-negative"}
	}

	result := []domain.StoredTransaction{}
	if limit == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, merchant, amount, payment_method, category, created_at
		FROM transactions
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Cause: err}
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "list", Cause: err}
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list", Cause: err}
	}
	return result, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, &domain.StorageError{Op: "count", Cause: err}
	}
	return n, nil
}

// ceilMicro rounds t up to the stored precision so a stamped row is never
// earlier than the clock reading it came from.
func ceilMicro(t time.Time) time.Time {
	c := t.Truncate(time.Microsecond)
	if c.Before(t) {
		c = c.Add(time.Microsecond)
	}
	return c
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (domain.StoredTransaction, error) {
	var (
		t         domain.StoredTransaction
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.Description, &t.Merchant, &t.Amount, &t.PaymentMethod, &t.Category, &createdAt); err != nil {
		return domain.StoredTransaction{}, err
	}
	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return domain.StoredTransaction{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	t.CreatedAt = ts
	return t, nil
}
