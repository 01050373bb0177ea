package migration

import (
	"context"
	"fmt"
	"sync"

	"balanceview/internal/core"
	"balanceview/internal/ledger"
	"balanceview/internal/log"
	"balanceview/internal/storage"
)

// Result describes a committed migration.
type Result struct {
	Month          core.MonthKey
	BillCount      int
	IncomeMerged   bool
	Retention      Retention
	Purged         bool
	PurgeScheduled bool
}

// Status is a point-in-time view of a session.
type Status struct {
	State  State
	Error  string
	Result *Result
}

// Session tracks one user's migration. It is safe for concurrent use; only
// one Migrate runs at a time.
type Session struct {
	svc    *Service
	userID string

	mu      sync.Mutex
	state   State
	lastErr error
	result  *Result
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: s.state}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	if s.result != nil {
		r := *s.result
		st.Result = &r
	}
	return st
}

// Detect checks once whether the user still has flat bills. Later calls
// return the current state without touching the store. A user with a
// migration marker is reported as NoLegacyData even if the flat data was
// retained.
func (s *Session) Detect(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unknown {
		return s.state, nil
	}

	migrated, err := s.svc.store.HasMigrationMarker(ctx, s.userID)
	if err != nil {
		return s.state, fmt.Errorf("detect legacy data: %w", err)
	}
	next := NoLegacyData
	if !migrated {
		found, err := s.svc.store.HasLegacyBills(ctx, s.userID)
		if err != nil {
			return s.state, fmt.Errorf("detect legacy data: %w", err)
		}
		if found {
			next = LegacyDetected
		}
	}

	if s.state, err = s.state.transition(next); err != nil {
		return s.state, err
	}
	s.svc.logger.DebugContext(ctx, "Legacy data detection finished",
		log.FieldUserID, s.userID, log.FieldState, s.state.String())
	return s.state, nil
}

// Migrate copies the flat income and bills into the current month as one
// batch. It is allowed from LegacyDetected and, for retries, MigrationFailed.
func (s *Session) Migrate(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state == Migrating {
		s.mu.Unlock()
		return Result{}, ErrMigrationInProgress
	}
	next, err := s.state.transition(Migrating)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	s.state = next
	s.lastErr = nil
	s.mu.Unlock()

	res, err := s.run(ctx)

	s.mu.Lock()
	if err != nil {
		s.state, _ = s.state.transition(MigrationFailed)
		s.lastErr = err
		s.mu.Unlock()

		s.svc.metrics.Migration("failed")
		s.svc.logger.ErrorContext(ctx, "Legacy migration failed",
			log.FieldUserID, s.userID, log.FieldOperation, log.OpMigrate, log.FieldError, err.Error())
		return Result{}, err
	}
	s.state, _ = s.state.transition(MigratedOK)
	res.Retention = s.svc.retention
	committed := res
	s.result = &committed
	s.mu.Unlock()

	s.svc.metrics.Migration("ok")
	s.svc.logger.InfoContext(ctx, "Legacy data migrated",
		log.FieldUserID, s.userID, log.FieldMonth, res.Month.String(), log.FieldBillCount, res.BillCount)

	if s.svc.announcer != nil {
		s.svc.announcer.Announce(ctx, ledger.ChangeEvent{
			UserID: s.userID,
			Month:  res.Month,
			Kind:   ledger.KindMigration,
			At:     s.svc.now(),
		})
	}
	s.svc.applyRetention(ctx, s.userID, &res)

	s.mu.Lock()
	s.result.Purged = res.Purged
	s.result.PurgeScheduled = res.PurgeScheduled
	s.mu.Unlock()
	return res, nil
}

func (s *Session) run(ctx context.Context) (Result, error) {
	month := core.MonthKeyOf(s.svc.now())

	rec, err := s.svc.store.GetLegacyRecord(ctx, s.userID)
	if err != nil {
		return Result{}, fmt.Errorf("read legacy data: %w", err)
	}

	res := Result{Month: month}
	batch := storage.NewBatch()
	if rec.MonthlyIncome.IsPositive() {
		batch.MergeIncome(s.userID, month, rec.MonthlyIncome)
		res.IncomeMerged = true
	}
	for _, b := range rec.Bills {
		b.Recurring = true
		batch.CreateBill(s.userID, month, b)
		res.BillCount++
	}
	batch.RecordMigration(s.userID, month, res.BillCount)

	if s.svc.beforeCommit != nil {
		s.svc.beforeCommit(batch)
	}
	if err := s.svc.store.CommitBatch(ctx, batch); err != nil {
		return Result{}, fmt.Errorf("commit migration: %w", err)
	}
	return res, nil
}
