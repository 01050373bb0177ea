// Package migration folds a user's flat, pre-monthly data into the current
// month. Each user session owns a Session whose State only moves along the
// allowed transitions; the fold itself is one atomic batch.
package migration

import (
	"context"
	"fmt"
	"time"

	"balanceview/internal/cache"
	"balanceview/internal/core"
	"balanceview/internal/ledger"
	"balanceview/internal/log"
	"balanceview/internal/metrics"
	"balanceview/internal/storage"
)

// Store is the persistence a migration needs.
type Store interface {
	HasLegacyBills(ctx context.Context, userID string) (bool, error)
	HasMigrationMarker(ctx context.Context, userID string) (bool, error)
	GetLegacyRecord(ctx context.Context, userID string) (core.LegacyUserRecord, error)
	CommitBatch(ctx context.Context, b *storage.Batch) error
	PurgeLegacy(ctx context.Context, userID string) (int64, error)
}

// Announcer receives the change event of a committed migration.
type Announcer interface {
	Announce(ctx context.Context, ev ledger.ChangeEvent)
}

// PurgeScheduler defers the purge retention policy to another process.
type PurgeScheduler interface {
	SchedulePurge(ctx context.Context, res Result, userID string) error
}

type Service struct {
	store     Store
	retention Retention
	scheduler PurgeScheduler
	announcer Announcer
	metrics   *metrics.Metrics
	logger    *log.Logger
	now       func() time.Time
	sessions  *cache.LRUCache[*Session]

	beforeCommit func(*storage.Batch)
}

type Option func(*Service)

func WithRetention(r Retention) Option { return func(s *Service) { s.retention = r } }

// WithPurgeScheduler hands purges to sched instead of running them inline.
func WithPurgeScheduler(sched PurgeScheduler) Option {
	return func(s *Service) { s.scheduler = sched }
}

func WithAnnouncer(a Announcer) Option { return func(s *Service) { s.announcer = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *log.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithSessionRegistry bounds how many user sessions are remembered and for how long.
func WithSessionRegistry(size int, ttl time.Duration) Option {
	return func(s *Service) { s.sessions = cache.NewLRUCache[*Session](size, ttl) }
}

// WithBeforeCommit lets tests inspect or arm the batch before it is committed.
func WithBeforeCommit(fn func(*storage.Batch)) Option {
	return func(s *Service) { s.beforeCommit = fn }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		retention: Retain,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = cache.NewLRUCache[*Session](10000, 12*time.Hour)
	}
	if s.logger == nil {
		s.logger = log.Default(log.ComponentMigration)
	}
	return s
}

func (s *Service) Retention() Retention { return s.retention }

// Sessions exposes the session registry to a cache.Manager sweep.
func (s *Service) Sessions() cache.Cleaner { return s.sessions }

// Session returns the user's registered session, creating it on first use.
func (s *Service) Session(userID string) *Session {
	return s.sessions.GetOrCreate(userID, func() *Session { return s.NewSession(userID) })
}

// NewSession returns a fresh, unregistered session in state Unknown.
func (s *Service) NewSession(userID string) *Session {
	return &Session{svc: s, userID: userID, state: Unknown}
}

// Purge deletes a migrated user's legacy data. Users without a migration
// marker are refused with ErrNotMigrated.
func (s *Service) Purge(ctx context.Context, userID string) (int64, error) {
	migrated, err := s.store.HasMigrationMarker(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !migrated {
		return 0, ErrNotMigrated
	}

	n, err := s.store.PurgeLegacy(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("purge legacy data: %w", err)
	}
	s.metrics.Purged()
	s.logger.InfoContext(ctx, "Legacy data purged", log.FieldUserID, userID, log.FieldBillCount, n)
	return n, nil
}

// applyRetention runs after a successful migration. Failures are logged;
// the migration itself already succeeded.
func (s *Service) applyRetention(ctx context.Context, userID string, res *Result) {
	res.Retention = s.retention
	if s.retention != Purge {
		return
	}

	if s.scheduler != nil {
		if err := s.scheduler.SchedulePurge(ctx, *res, userID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule legacy purge",
				log.FieldUserID, userID, log.FieldError, err.Error())
			return
		}
		res.PurgeScheduled = true
		return
	}

	if _, err := s.Purge(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "Legacy purge failed",
			log.FieldUserID, userID, log.FieldOperation, log.OpPurge, log.FieldError, err.Error())
		return
	}
	res.Purged = true
}
