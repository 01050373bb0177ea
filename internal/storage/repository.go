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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"balanceview/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository is the document store behind ledgers, legacy data and users.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Non-blocking ledger writes arrive concurrently; one connection keeps
	// SQLite from answering SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable, for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetMonth returns the snapshot for month. The boolean is false when the
// month has never been written; the snapshot is then the zero value.
func (r *SQLiteRepository) GetMonth(ctx context.Context, userID string, month core.MonthKey) (core.MonthSnapshot, bool, error) {
	snap := core.NewMonthSnapshot(month)

	var income string
	err := r.db.QueryRowContext(ctx,
		`SELECT monthly_income FROM months WHERE user_id = ? AND month_key = ?`,
		userID, month.String()).Scan(&income)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("get month %s: %w", month, err)
	}
	snap.MonthlyIncome = parseAmount(income)

	bills, err := r.ListBills(ctx, userID, month)
	if err != nil {
		return snap, true, err
	}
	snap.Bills = bills
	return snap, true, nil
}

// ListMonths returns the user's months most recent first, with income but
// without bills. limit <= 0 means no limit.
func (r *SQLiteRepository) ListMonths(ctx context.Context, userID string, limit int) ([]core.MonthSnapshot, error) {
	query := `SELECT month_key, monthly_income FROM months WHERE user_id = ? ORDER BY month_key DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	defer rows.Close()

	var out []core.MonthSnapshot
	for rows.Next() {
		var key, income string
		if err := rows.Scan(&key, &income); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		mk, err := core.ParseMonthKey(key)
		if err != nil {
			slog.WarnContext(ctx, "Skipping month with malformed key", "user_id", userID, "month_key", key)
			continue
		}
		snap := core.NewMonthSnapshot(mk)
		snap.MonthlyIncome = parseAmount(income)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ListBills returns the bills of one month ordered by payment date and name.
func (r *SQLiteRepository) ListBills(ctx context.Context, userID string, month core.MonthKey) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, amount, payment_date, recurring, payment_account
		   FROM bills WHERE user_id = ? AND month_key = ?
		  ORDER BY payment_date, name, id`,
		userID, month.String())
	if err != nil {
		return nil, fmt.Errorf("list bills %s: %w", month, err)
	}
	defer rows.Close()

	bills := []core.Bill{}
	for rows.Next() {
		var (
			b         core.Bill
			amount    string
			recurring int64
		)
		if err := rows.Scan(&b.ID, &b.Name, &amount, &b.PaymentDate, &recurring, &b.PaymentAccount); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		b.Amount = parseAmount(amount)
		b.Recurring = recurring != 0
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// MergeIncome sets the month's income, creating the month if needed.
func (r *SQLiteRepository) MergeIncome(ctx context.Context, userID string, month core.MonthKey, income decimal.Decimal) error {
	if err := mergeIncome(ctx, r.db, userID, month, income, r.now()); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Income merged", "user_id", userID, "month", month.String(), "income", income.String())
	return nil
}

// InsertBill appends a bill to month and returns the generated id.
func (r *SQLiteRepository) InsertBill(ctx context.Context, userID string, month core.MonthKey, b core.Bill) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertBill(ctx, tx, userID, month, b, r.now())
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit bill: %w", err)
	}

	slog.DebugContext(ctx, "Bill saved", "user_id", userID, "month", month.String(), "id", id)
	return id, nil
}

// DeleteBill removes a bill. It reports whether a row was deleted; an
// unknown id is not an error.
func (r *SQLiteRepository) DeleteBill(ctx context.Context, userID string, month core.MonthKey, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM bills WHERE id = ? AND user_id = ? AND month_key = ?`,
		id, userID, month.String())
	if err != nil {
		return false, fmt.Errorf("delete bill: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete bill rows affected: %w", err)
	}
	return n > 0, nil
}

func ensureMonth(ctx context.Context, ex execer, userID string, month core.MonthKey, now time.Time) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO months (user_id, month_key, monthly_income, updated_at)
		 VALUES (?, ?, '0', ?)
		 ON CONFLICT(user_id, month_key) DO NOTHING`,
		userID, month.String(), now.Unix())
	if err != nil {
		return fmt.Errorf("ensure month %s: %w", month, err)
	}
	return nil
}

func mergeIncome(ctx context.Context, ex execer, userID string, month core.MonthKey, income decimal.Decimal, now time.Time) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO months (user_id, month_key, monthly_income, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, month_key) DO UPDATE SET
		   monthly_income = excluded.monthly_income,
		   updated_at = excluded.updated_at`,
		userID, month.String(), income.String(), now.Unix())
	if err != nil {
		return fmt.Errorf("merge income %s: %w", month, err)
	}
	return nil
}

func insertBill(ctx context.Context, ex execer, userID string, month core.MonthKey, b core.Bill, now time.Time) (string, error) {
	if err := ensureMonth(ctx, ex, userID, month, now); err != nil {
		return "", err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO bills (id, user_id, month_key, name, amount, payment_date, recurring, payment_account, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, userID, month.String(), b.Name, b.Amount.String(), b.PaymentDate, boolToInt(b.Recurring), b.PaymentAccount, now.Unix())
	if err != nil {
		return "", fmt.Errorf("insert bill: %w", err)
	}
	return b.ID, nil
}

// parseAmount reads a stored decimal. Malformed values read as zero since
// the store never validated what it accepted.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
