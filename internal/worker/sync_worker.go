package worker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"balanceview/internal/amqp"
	"balanceview/internal/core"
	"balanceview/internal/log"
	"balanceview/internal/metrics"
	"balanceview/internal/migration"
	"balanceview/internal/sheets"
)

// Purger applies the purge retention policy for one user.
type Purger interface {
	Purge(ctx context.Context, userID string) (int64, error)
}

// MonthReader reads the persisted state of a month.
type MonthReader interface {
	GetMonth(ctx context.Context, userID string, month core.MonthKey) (core.MonthSnapshot, bool, error)
}

// Consumer is the broker side the worker listens on.
type Consumer interface {
	ConsumeLedgerChanged(ctx context.Context, queue string, prefetch int, handler func(context.Context, *amqp.LedgerChangedMessage) error) error
	ConsumeLegacyMigrated(ctx context.Context, queue string, prefetch int, handler func(context.Context, *amqp.LegacyMigratedMessage) error) error
}

// SyncWorker applies deferred retention and mirrors changed months to an
// external sheet.
type SyncWorker struct {
	purger   Purger
	months   MonthReader
	exporter sheets.MonthExporter // nil disables export
	metrics  *metrics.Metrics
	logger   *log.Logger
}

func NewSyncWorker(purger Purger, months MonthReader, exporter sheets.MonthExporter, m *metrics.Metrics) *SyncWorker {
	return &SyncWorker{
		purger:   purger,
		months:   months,
		exporter: exporter,
		metrics:  m,
		logger:   log.Default(log.ComponentWorker),
	}
}

// Queues names the queues Run consumes and how many unacked messages each
// may hold.
type Queues struct {
	Purge    string
	Export   string
	Prefetch int
}

// Run consumes both queues until ctx ends or one consumer fails. The export
// consumer only starts when an exporter is configured.
func (w *SyncWorker) Run(ctx context.Context, c Consumer, q Queues) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.ConsumeLegacyMigrated(ctx, q.Purge, q.Prefetch, w.HandleLegacyMigrated)
	})
	if w.exporter != nil {
		g.Go(func() error {
			return c.ConsumeLedgerChanged(ctx, q.Export, q.Prefetch, w.HandleLedgerChanged)
		})
	} else {
		w.logger.InfoContext(ctx, "Skipping ledger export - no exporter configured")
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleLegacyMigrated purges the user's legacy data when the message asks
// for the purge policy. Users that were never migrated are acknowledged and
// skipped so the message is not redelivered forever.
func (w *SyncWorker) HandleLegacyMigrated(ctx context.Context, msg *amqp.LegacyMigratedMessage) error {
	if msg.Retention != string(migration.Purge) {
		w.logger.DebugContext(ctx, "Retention is not purge, nothing to do",
			log.FieldUserID, msg.UserID,
			"retention", msg.Retention)
		w.metrics.Event(amqp.RoutingLegacyMigrated, "skipped")
		return nil
	}

	n, err := w.purger.Purge(ctx, msg.UserID)
	switch {
	case errors.Is(err, migration.ErrNotMigrated):
		w.logger.WarnContext(ctx, "Purge requested for a user without migration marker",
			log.FieldUserID, msg.UserID)
		w.metrics.Event(amqp.RoutingLegacyMigrated, "skipped")
		return nil
	case err != nil:
		w.metrics.Event(amqp.RoutingLegacyMigrated, "failed")
		return fmt.Errorf("purge legacy data: %w", err)
	}

	w.metrics.Event(amqp.RoutingLegacyMigrated, "ok")
	w.logger.InfoContext(ctx, "Applied purge retention",
		log.FieldUserID, msg.UserID,
		log.FieldBillCount, n)
	return nil
}

// HandleLedgerChanged re-reads the month from storage and exports it.
func (w *SyncWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if w.exporter == nil {
		return nil
	}

	month, err := core.ParseMonthKey(msg.Month)
	if err != nil {
		// Redelivery cannot fix a bad key.
		w.logger.WarnContext(ctx, "Dropping change event with invalid month", log.FieldMonth, msg.Month)
		w.metrics.Event(amqp.RoutingLedgerChanged, "skipped")
		return nil
	}

	snap, found, err := w.months.GetMonth(ctx, msg.UserID, month)
	if err != nil {
		w.metrics.Event(amqp.RoutingLedgerChanged, "failed")
		return fmt.Errorf("get month from storage: %w", err)
	}
	if !found {
		snap = core.NewMonthSnapshot(month)
	}

	if err := w.exporter.ExportMonth(ctx, msg.UserID, snap); err != nil {
		w.metrics.Event(amqp.RoutingLedgerChanged, "failed")
		return fmt.Errorf("export month: %w", err)
	}

	w.metrics.Event(amqp.RoutingLedgerChanged, "ok")
	w.logger.DebugContext(ctx, "Exported month",
		log.FieldUserID, msg.UserID,
		log.FieldMonth, msg.Month,
		log.FieldKind, msg.Kind)
	return nil
}
