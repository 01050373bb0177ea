// Package ledger reads and mutates the per-user monthly snapshots.
//
// Reads are synchronous. SetIncome, AddBill and DeleteBill are non-blocking:
// they return a *Write immediately and persist in the background. A failed
// write is logged and counted; callers that care can Wait on the handle or
// attach OnError. Committed writes are announced on the Hub, to an optional
// Notifier, and invalidate the snapshot cache.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"balanceview/internal/cache"
	"balanceview/internal/core"
	"balanceview/internal/log"
	"balanceview/internal/metrics"
)

// Store is the persistence the ledger needs.
type Store interface {
	GetMonth(ctx context.Context, userID string, month core.MonthKey) (core.MonthSnapshot, bool, error)
	ListMonths(ctx context.Context, userID string, limit int) ([]core.MonthSnapshot, error)
	ListBills(ctx context.Context, userID string, month core.MonthKey) ([]core.Bill, error)
	MergeIncome(ctx context.Context, userID string, month core.MonthKey, income decimal.Decimal) error
	InsertBill(ctx context.Context, userID string, month core.MonthKey, b core.Bill) (string, error)
	DeleteBill(ctx context.Context, userID string, month core.MonthKey, id string) (bool, error)
}

// Notifier forwards change events outside the process.
type Notifier interface {
	NotifyChange(ctx context.Context, ev ChangeEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev ChangeEvent) error

func (f NotifierFunc) NotifyChange(ctx context.Context, ev ChangeEvent) error { return f(ctx, ev) }

const defaultWriteTimeout = 10 * time.Second

type Ledger struct {
	store        Store
	hub          *Hub
	snapshots    *cache.LRUCache[core.MonthSnapshot]
	notifier     Notifier
	metrics      *metrics.Metrics
	logger       *log.Logger
	writeTimeout time.Duration
	now          func() time.Time

	inflight sync.WaitGroup

	// generations counts invalidations per cache key so a read that raced
	// a committed write does not cache what it read.
	genMu       sync.Mutex
	generations map[string]uint64
}

type Option func(*Ledger)

func WithHub(h *Hub) Option { return func(l *Ledger) { l.hub = h } }

// WithCache enables read-through caching of month snapshots.
func WithCache(c *cache.LRUCache[core.MonthSnapshot]) Option {
	return func(l *Ledger) { l.snapshots = c }
}

func WithNotifier(n Notifier) Option { return func(l *Ledger) { l.notifier = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

func WithLogger(lg *log.Logger) Option { return func(l *Ledger) { l.logger = lg } }

func WithWriteTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// WithClock overrides the clock used for the current month and event times.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		hub:          NewHub(),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		generations:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.Default(log.ComponentLedger)
	}
	return l
}

func (l *Ledger) Hub() *Hub { return l.hub }

// CurrentMonth is the month containing the ledger clock's now.
func (l *Ledger) CurrentMonth() core.MonthKey { return core.MonthKeyOf(l.now()) }

// Income returns the month's income, zero when the month was never written.
func (l *Ledger) Income(ctx context.Context, userID string, month core.MonthKey) (decimal.Decimal, error) {
	snap, err := l.Snapshot(ctx, userID, month)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.MonthlyIncome, nil
}

// Snapshot returns income and bills of a month. An unwritten month yields
// the zero snapshot, not an error.
func (l *Ledger) Snapshot(ctx context.Context, userID string, month core.MonthKey) (core.MonthSnapshot, error) {
	if err := month.Validate(); err != nil {
		return core.MonthSnapshot{}, err
	}
	key := cacheKey(userID, month)
	var gen uint64
	if l.snapshots != nil {
		if snap, ok := l.snapshots.Get(key); ok {
			return snap, nil
		}
		l.genMu.Lock()
		gen = l.generations[key]
		l.genMu.Unlock()
	}

	snap, _, err := l.store.GetMonth(ctx, userID, month)
	if err != nil {
		return core.NewMonthSnapshot(month), fmt.Errorf("read month %s: %w", month, err)
	}
	if l.snapshots != nil {
		l.genMu.Lock()
		if l.generations[key] == gen {
			l.snapshots.Set(key, snap)
		}
		l.genMu.Unlock()
	}
	return snap, nil
}

// Bills returns the month's bills ordered by payment date, then name.
func (l *Ledger) Bills(ctx context.Context, userID string, month core.MonthKey) ([]core.Bill, error) {
	snap, err := l.Snapshot(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	bills := append([]core.Bill(nil), snap.Bills...)
	core.SortBills(bills)
	return bills, nil
}

// ListMonths summarizes the user's months, most recent first. limit <= 0
// returns every month.
func (l *Ledger) ListMonths(ctx context.Context, userID string, limit int) ([]core.MonthSummary, error) {
	months, err := l.store.ListMonths(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}

	summaries := make([]core.MonthSummary, len(months))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, m := range months {
		g.Go(func() error {
			bills, err := l.store.ListBills(gctx, userID, m.Month)
			if err != nil {
				return fmt.Errorf("bills of %s: %w", m.Month, err)
			}
			m.Bills = bills
			summaries[i] = core.Summarize(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[j].Month.Before(summaries[i].Month)
	})
	return summaries, nil
}

// SetIncome stores the month's income. Negative, NaN and infinite values
// are stored as zero.
func (l *Ledger) SetIncome(ctx context.Context, userID string, month core.MonthKey, v float64) *Write {
	income := core.NormalizeIncome(v)
	ev := &ChangeEvent{UserID: userID, Month: month, Kind: KindIncome}
	return l.submit(ctx, ev, func(ctx context.Context) (bool, error) {
		return true, l.store.MergeIncome(ctx, userID, month, income)
	})
}

// AddBill appends a bill. Invalid input is dropped without a store call and
// the returned Write reports Dropped.
func (l *Ledger) AddBill(ctx context.Context, userID string, month core.MonthKey, in core.BillInput) *Write {
	if err := in.Validate(); err != nil {
		l.metrics.BillDropped()
		l.logger.DebugContext(ctx, "Bill dropped",
			log.FieldUserID, userID, log.FieldMonth, month.String(), log.FieldError, err.Error())
		return droppedWrite(KindAddBill)
	}

	bill := in.Bill()
	ev := &ChangeEvent{UserID: userID, Month: month, Kind: KindAddBill}
	return l.submit(ctx, ev, func(ctx context.Context) (bool, error) {
		id, err := l.store.InsertBill(ctx, userID, month, bill)
		ev.BillID = id
		return true, err
	})
}

// DeleteBill removes a bill. Unknown ids are ignored.
func (l *Ledger) DeleteBill(ctx context.Context, userID string, month core.MonthKey, id string) *Write {
	ev := &ChangeEvent{UserID: userID, Month: month, Kind: KindDeleteBill, BillID: id}
	return l.submit(ctx, ev, func(ctx context.Context) (bool, error) {
		return l.store.DeleteBill(ctx, userID, month, id)
	})
}

// Flush waits for every accepted write to finish.
func (l *Ledger) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Announce invalidates cached reads of the event's month and broadcasts it.
// Writers outside the ledger, like the migration, call it after committing.
func (l *Ledger) Announce(ctx context.Context, ev ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = l.now()
	}
	l.Invalidate(ev.UserID, ev.Month)
	l.hub.Publish(ev)

	if l.notifier == nil {
		return
	}
	if err := l.notifier.NotifyChange(ctx, ev); err != nil {
		l.metrics.Event("ledger.changed", "failed")
		l.logger.WarnContext(ctx, "Failed to forward change event",
			log.FieldUserID, ev.UserID, log.FieldMonth, ev.Month.String(), log.FieldKind, ev.Kind, log.FieldError, err.Error())
		return
	}
	l.metrics.Event("ledger.changed", "published")
}

// Invalidate drops the cached snapshot of one month.
func (l *Ledger) Invalidate(userID string, month core.MonthKey) {
	if l.snapshots == nil {
		return
	}
	key := cacheKey(userID, month)
	l.genMu.Lock()
	l.generations[key]++
	l.snapshots.Delete(key)
	l.genMu.Unlock()
}

// submit runs fn in the background, detached from the caller's cancellation.
// fn reports whether it changed anything worth announcing and may fill in
// ev before it is announced.
func (l *Ledger) submit(ctx context.Context, ev *ChangeEvent, fn func(ctx context.Context) (bool, error)) *Write {
	w := newWrite(ev.Kind)
	if err := ev.Month.Validate(); err != nil {
		w.complete(err)
		return w
	}

	l.inflight.Add(1)
	start := time.Now()
	bg := context.WithoutCancel(ctx)

	go func() {
		defer l.inflight.Done()

		wctx, cancel := context.WithTimeout(bg, l.writeTimeout)
		defer cancel()

		changed, err := fn(wctx)
		if err != nil {
			l.metrics.WriteFailed(ev.Kind)
			l.logger.ErrorContext(bg, "Ledger write failed",
				log.FieldOperation, ev.Kind, log.FieldUserID, ev.UserID, log.FieldMonth, ev.Month.String(), log.FieldError, err.Error())
			w.complete(err)
			return
		}

		l.metrics.WriteCompleted(ev.Kind, time.Since(start))
		if changed {
			l.Announce(bg, *ev)
		}
		w.complete(nil)
	}()
	return w
}

func cacheKey(userID string, month core.MonthKey) string {
	return userID + "|" + month.String()
}
