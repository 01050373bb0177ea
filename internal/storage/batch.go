package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"balanceview/internal/core"
)

// ErrInjectedFailure is returned by a batch armed with FailAt.
var ErrInjectedFailure = errors.New("injected batch failure")

type batchOp struct {
	name  string
	apply func(ctx context.Context, ex execer, now time.Time) error
}

// Batch collects writes that are committed together or not at all.
type Batch struct {
	ops    []batchOp
	failAt int
}

func NewBatch() *Batch {
	return &Batch{failAt: -1}
}

// Len returns the number of queued writes.
func (b *Batch) Len() int {
	return len(b.ops)
}

// FailAt makes the commit fail right before applying the write at index i.
// Used to exercise rollback.
func (b *Batch) FailAt(i int) {
	b.failAt = i
}

// MergeIncome queues a merge write of the month's income.
func (b *Batch) MergeIncome(userID string, month core.MonthKey, income decimal.Decimal) {
	b.ops = append(b.ops, batchOp{
		name: "merge_income",
		apply: func(ctx context.Context, ex execer, now time.Time) error {
			return mergeIncome(ctx, ex, userID, month, income, now)
		},
	})
}

// CreateBill queues a bill insert. The id is generated now so callers can
// reference it before the commit.
func (b *Batch) CreateBill(userID string, month core.MonthKey, bill core.Bill) string {
	bill.ID = uuid.NewString()
	b.ops = append(b.ops, batchOp{
		name: "create_bill",
		apply: func(ctx context.Context, ex execer, now time.Time) error {
			_, err := insertBill(ctx, ex, userID, month, bill, now)
			return err
		},
	})
	return bill.ID
}

// RecordMigration queues the marker stating that the user's legacy data was
// folded into month.
func (b *Batch) RecordMigration(userID string, month core.MonthKey, billCount int) {
	b.ops = append(b.ops, batchOp{
		name: "record_migration",
		apply: func(ctx context.Context, ex execer, now time.Time) error {
			_, err := ex.ExecContext(ctx,
				`INSERT INTO legacy_migrations (user_id, month_key, bill_count, migrated_at) VALUES (?, ?, ?, ?)`,
				userID, month.String(), billCount, now.Unix())
			if err != nil {
				return fmt.Errorf("record migration: %w", err)
			}
			return nil
		},
	})
}

// CommitBatch applies every queued write in a single transaction.
func (r *SQLiteRepository) CommitBatch(ctx context.Context, b *Batch) error {
	if b == nil || len(b.ops) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	for i, op := range b.ops {
		if i == b.failAt {
			return fmt.Errorf("batch op %d (%s): %w", i, op.name, ErrInjectedFailure)
		}
		if err := op.apply(ctx, tx, now); err != nil {
			return fmt.Errorf("batch op %d (%s): %w", i, op.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	slog.DebugContext(ctx, "Batch committed", "writes", len(b.ops))
	return nil
}
