package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"balanceview/internal/core"
)

// HasLegacyBills reports whether the flat bill collection has at least one row.
func (r *SQLiteRepository) HasLegacyBills(ctx context.Context, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM legacy_bills WHERE user_id = ? LIMIT 1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check legacy bills: %w", err)
	}
	return true, nil
}

// HasMigrationMarker reports whether legacy data was already migrated once.
func (r *SQLiteRepository) HasMigrationMarker(ctx context.Context, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM legacy_migrations WHERE user_id = ? LIMIT 1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check migration marker: %w", err)
	}
	return true, nil
}

// GetLegacyRecord reads the flat income and bills. A user without a legacy
// row gets a zero income and an empty bill list.
func (r *SQLiteRepository) GetLegacyRecord(ctx context.Context, userID string) (core.LegacyUserRecord, error) {
	rec := core.LegacyUserRecord{UserID: userID, MonthlyIncome: decimal.Zero}

	var income sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT monthly_income FROM legacy_users WHERE user_id = ?`, userID).Scan(&income)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return rec, fmt.Errorf("get legacy user: %w", err)
	case income.Valid:
		rec.MonthlyIncome = parseAmount(income.String)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, amount, payment_date, recurring, payment_account
		   FROM legacy_bills WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return rec, fmt.Errorf("list legacy bills: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b         core.Bill
			amount    string
			recurring sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &b.Name, &amount, &b.PaymentDate, &recurring, &b.PaymentAccount); err != nil {
			return rec, fmt.Errorf("scan legacy bill: %w", err)
		}
		b.Amount = parseAmount(amount)
		b.Recurring = recurring.Valid && recurring.Int64 != 0
		rec.Bills = append(rec.Bills, b)
	}
	return rec, rows.Err()
}

// SaveLegacyRecord writes flat data for a user. It exists to import data
// exported from the pre-monthly application.
func (r *SQLiteRepository) SaveLegacyRecord(ctx context.Context, rec core.LegacyUserRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO legacy_users (user_id, monthly_income) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET monthly_income = excluded.monthly_income`,
		rec.UserID, rec.MonthlyIncome.String()); err != nil {
		return fmt.Errorf("save legacy user: %w", err)
	}
	for _, b := range rec.Bills {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO legacy_bills (id, user_id, name, amount, payment_date, recurring, payment_account, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, rec.UserID, b.Name, b.Amount.String(), b.PaymentDate, boolToInt(b.Recurring), b.PaymentAccount, now.Unix()); err != nil {
			return fmt.Errorf("save legacy bill: %w", err)
		}
	}
	return tx.Commit()
}

// PurgeLegacy deletes the flat data of a user and returns the number of
// bills removed. Migration markers are kept.
func (r *SQLiteRepository) PurgeLegacy(ctx context.Context, userID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM legacy_bills WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("purge legacy bills: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM legacy_users WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("purge legacy user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}

	slog.InfoContext(ctx, "Legacy data purged", "user_id", userID, "bills", n)
	return n, nil
}
