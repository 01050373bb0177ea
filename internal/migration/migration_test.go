package migration

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"balanceview/internal/core"
	"balanceview/internal/ledger"
	"balanceview/internal/storage"
)

var testNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "migration.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedLegacy(t *testing.T, repo *storage.SQLiteRepository, userID string, income int64) {
	t.Helper()
	err := repo.SaveLegacyRecord(context.Background(), core.LegacyUserRecord{
		UserID:        userID,
		MonthlyIncome: decimal.NewFromInt(income),
		Bills: []core.Bill{
			{Name: "Rent", Amount: decimal.NewFromInt(1200), PaymentDate: 1, PaymentAccount: "Checking"},
			{Name: "Electric", Amount: decimal.NewFromInt(75), PaymentDate: 15},
		},
	})
	if err != nil {
		t.Fatalf("seed legacy: %v", err)
	}
}

func newService(store Store, opts ...Option) *Service {
	return NewService(store, append([]Option{WithClock(func() time.Time { return testNow })}, opts...)...)
}

func march(t *testing.T) core.MonthKey {
	t.Helper()
	mk, err := core.ParseMonthKey("2024-03")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return mk
}

func TestStateTransitions(t *testing.T) {
	allowed := []struct{ from, to State }{
		{Unknown, NoLegacyData},
		{Unknown, LegacyDetected},
		{LegacyDetected, Migrating},
		{MigrationFailed, Migrating},
		{Migrating, MigratedOK},
		{Migrating, MigrationFailed},
	}
	for _, tt := range allowed {
		if !tt.from.CanTransition(tt.to) {
			t.Errorf("%s -> %s should be allowed", tt.from, tt.to)
		}
	}

	denied := []struct{ from, to State }{
		{Unknown, Migrating},
		{NoLegacyData, Migrating},
		{MigratedOK, Migrating},
		{MigratedOK, LegacyDetected},
		{LegacyDetected, MigratedOK},
		{Migrating, Migrating},
	}
	for _, tt := range denied {
		if _, err := tt.from.transition(tt.to); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: got %v, want ErrInvalidTransition", tt.from, tt.to, err)
		}
	}
}

func TestParseRetention(t *testing.T) {
	tests := []struct {
		in      string
		want    Retention
		wantErr bool
	}{
		{"", Retain, false},
		{"retain", Retain, false},
		{" PURGE ", Purge, false},
		{"delete", Retain, true},
	}
	for _, tt := range tests {
		got, err := ParseRetention(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRetention(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestDetectWithoutLegacyData(t *testing.T) {
	svc := newService(newRepo(t))
	st, err := svc.NewSession("u1").Detect(context.Background())
	if err != nil || st != NoLegacyData {
		t.Fatalf("detect = %s, %v", st, err)
	}
}

func TestDetectTwiceWithoutMigration(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)
	svc := newService(repo)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st, err := svc.NewSession("u1").Detect(ctx)
		if err != nil {
			t.Fatalf("detect: %v", err)
		}
		if !st.HasLegacyData() {
			t.Fatalf("run %d: state %s, want legacy data", i, st)
		}
	}

	sess := svc.NewSession("u1")
	sess.Detect(ctx)
	if st, _ := sess.Detect(ctx); st != LegacyDetected {
		t.Fatalf("second detect in session = %s", st)
	}
}

func TestMigrateFoldsIntoCurrentMonth(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)

	var announced []ledger.ChangeEvent
	svc := newService(repo, WithAnnouncer(announcerFunc(func(ctx context.Context, ev ledger.ChangeEvent) {
		announced = append(announced, ev)
	})))
	ctx := context.Background()

	sess := svc.Session("u1")
	if st, err := sess.Detect(ctx); err != nil || st != LegacyDetected {
		t.Fatalf("detect = %s, %v", st, err)
	}

	res, err := sess.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Month != march(t) || res.BillCount != 2 || !res.IncomeMerged || res.Retention != Retain {
		t.Fatalf("unexpected result: %+v", res)
	}
	if sess.State() != MigratedOK || sess.State().HasLegacyData() {
		t.Fatalf("state = %s", sess.State())
	}

	snap, ok, err := repo.GetMonth(ctx, "u1", march(t))
	if err != nil || !ok {
		t.Fatalf("get month: ok=%v err=%v", ok, err)
	}
	if !snap.MonthlyIncome.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("income = %s", snap.MonthlyIncome)
	}
	if len(snap.Bills) != 2 {
		t.Fatalf("bills = %+v", snap.Bills)
	}
	for _, b := range snap.Bills {
		if !b.Recurring {
			t.Errorf("migrated bill %q not recurring", b.Name)
		}
		if b.Name == "Rent" && (b.PaymentAccount != "Checking" || !b.Amount.Equal(decimal.NewFromInt(1200)) || b.PaymentDate != 1) {
			t.Errorf("fields not copied: %+v", b)
		}
	}
	sum := core.Summarize(snap)
	if !sum.Balance.Equal(decimal.NewFromInt(1225)) {
		t.Fatalf("balance = %s", sum.Balance)
	}

	if len(announced) != 1 || announced[0].Kind != ledger.KindMigration {
		t.Fatalf("announced = %+v", announced)
	}

	// Retained legacy data is still there but detection in a new session
	// sees the marker.
	if has, _ := repo.HasLegacyBills(ctx, "u1"); !has {
		t.Fatalf("retain policy deleted legacy bills")
	}
	if st, _ := svc.NewSession("u1").Detect(ctx); st != NoLegacyData {
		t.Fatalf("detect after migration = %s", st)
	}
	if _, err := sess.Migrate(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMigrateSkipsZeroIncome(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 0)
	ctx := context.Background()

	if err := repo.MergeIncome(ctx, "u1", march(t), decimal.NewFromInt(900)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	sess := newService(repo).NewSession("u1")
	sess.Detect(ctx)
	res, err := sess.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.IncomeMerged {
		t.Fatalf("zero income merged")
	}
	snap, _, _ := repo.GetMonth(ctx, "u1", march(t))
	if !snap.MonthlyIncome.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("existing income overwritten: %s", snap.MonthlyIncome)
	}
}

func TestMigrateWithoutDetectIsInvalid(t *testing.T) {
	svc := newService(newRepo(t))
	if _, err := svc.NewSession("u1").Migrate(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v", err)
	}
}

func TestMigrationIsAtomic(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)
	ctx := context.Background()

	// income, two bills, marker
	for failAt := 0; failAt < 4; failAt++ {
		svc := newService(repo, WithBeforeCommit(func(b *storage.Batch) { b.FailAt(failAt) }))
		sess := svc.NewSession("u1")
		if _, err := sess.Detect(ctx); err != nil {
			t.Fatalf("detect: %v", err)
		}

		_, err := sess.Migrate(ctx)
		if !errors.Is(err, storage.ErrInjectedFailure) {
			t.Fatalf("fail at %d: got %v", failAt, err)
		}
		st := sess.Status()
		if st.State != MigrationFailed || st.Error == "" || !st.State.HasLegacyData() {
			t.Fatalf("fail at %d: status %+v", failAt, st)
		}

		snap, ok, err := repo.GetMonth(ctx, "u1", march(t))
		if err != nil {
			t.Fatalf("get month: %v", err)
		}
		if ok || !snap.MonthlyIncome.IsZero() || len(snap.Bills) != 0 {
			t.Fatalf("fail at %d: partial state %+v", failAt, snap)
		}
	}
}

func TestRetryAfterFailure(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)
	ctx := context.Background()

	fail := true
	svc := newService(repo, WithBeforeCommit(func(b *storage.Batch) {
		if fail {
			b.FailAt(1)
		}
	}))
	sess := svc.Session("u1")
	sess.Detect(ctx)

	if _, err := sess.Migrate(ctx); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	fail = false
	res, err := sess.Migrate(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.BillCount != 2 || sess.Status().Error != "" {
		t.Fatalf("unexpected retry outcome: %+v %+v", res, sess.Status())
	}
}

// blockingStore holds GetLegacyRecord until release is closed.
type blockingStore struct {
	Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) GetLegacyRecord(ctx context.Context, userID string) (core.LegacyUserRecord, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Store.GetLegacyRecord(ctx, userID)
}

func TestConcurrentMigrateIsRejected(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)
	store := &blockingStore{Store: repo, entered: make(chan struct{}), release: make(chan struct{})}
	ctx := context.Background()

	sess := newService(store).Session("u1")
	sess.Detect(ctx)

	errc := make(chan error, 1)
	go func() {
		_, err := sess.Migrate(ctx)
		errc <- err
	}()
	<-store.entered

	if sess.State() != Migrating {
		t.Fatalf("state = %s, want migrating", sess.State())
	}
	if _, err := sess.Migrate(ctx); !errors.Is(err, ErrMigrationInProgress) {
		t.Fatalf("concurrent migrate: %v", err)
	}

	close(store.release)
	if err := <-errc; err != nil {
		t.Fatalf("migrate: %v", err)
	}
	bills, _ := repo.ListBills(ctx, "u1", march(t))
	if len(bills) != 2 {
		t.Fatalf("bills = %d, want 2", len(bills))
	}
}

func TestPurgeRetentionInline(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)
	ctx := context.Background()

	sess := newService(repo, WithRetention(Purge)).NewSession("u1")
	sess.Detect(ctx)
	res, err := sess.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !res.Purged {
		t.Fatalf("expected inline purge: %+v", res)
	}
	if has, _ := repo.HasLegacyBills(ctx, "u1"); has {
		t.Fatalf("legacy bills survived purge")
	}
	if bills, _ := repo.ListBills(ctx, "u1", march(t)); len(bills) != 2 {
		t.Fatalf("migrated bills lost: %d", len(bills))
	}
}

type schedulerFunc func(ctx context.Context, res Result, userID string) error

func (f schedulerFunc) SchedulePurge(ctx context.Context, res Result, userID string) error {
	return f(ctx, res, userID)
}

type announcerFunc func(ctx context.Context, ev ledger.ChangeEvent)

func (f announcerFunc) Announce(ctx context.Context, ev ledger.ChangeEvent) { f(ctx, ev) }

func TestPurgeRetentionScheduled(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)
	ctx := context.Background()

	var scheduled []string
	svc := newService(repo, WithRetention(Purge), WithPurgeScheduler(schedulerFunc(func(ctx context.Context, res Result, userID string) error {
		scheduled = append(scheduled, userID)
		return nil
	})))
	sess := svc.NewSession("u1")
	sess.Detect(ctx)
	res, err := sess.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !res.PurgeScheduled || res.Purged || len(scheduled) != 1 {
		t.Fatalf("unexpected scheduling: %+v %v", res, scheduled)
	}
	if has, _ := repo.HasLegacyBills(ctx, "u1"); !has {
		t.Fatalf("scheduled purge ran inline")
	}

	n, err := svc.Purge(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
}

func TestStatusCarriesResultWhileRetentionRuns(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)
	ctx := context.Background()

	var sess *Session
	var during Status
	svc := newService(repo, WithRetention(Purge), WithPurgeScheduler(schedulerFunc(func(ctx context.Context, res Result, userID string) error {
		during = sess.Status()
		return nil
	})))
	sess = svc.NewSession("u1")
	sess.Detect(ctx)
	if _, err := sess.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if during.State != MigratedOK || during.Result == nil {
		t.Fatalf("status during retention = %+v, want migrated with a result", during)
	}
	if during.Result.BillCount != 2 || during.Result.Retention != Purge {
		t.Fatalf("unexpected result during retention: %+v", *during.Result)
	}

	after := sess.Status()
	if after.Result == nil || !after.Result.PurgeScheduled {
		t.Fatalf("final status = %+v, want purge scheduled", after)
	}
}

func TestPurgeRequiresMarker(t *testing.T) {
	repo := newRepo(t)
	seedLegacy(t, repo, "u1", 2500)

	if _, err := newService(repo).Purge(context.Background(), "u1"); !errors.Is(err, ErrNotMigrated) {
		t.Fatalf("got %v", err)
	}
}

func TestSessionRegistryReturnsSameSession(t *testing.T) {
	svc := newService(newRepo(t), WithSessionRegistry(2, time.Minute))
	if svc.Session("u1") != svc.Session("u1") {
		t.Fatalf("registry returned a different session")
	}
	if svc.Session("u1") == svc.Session("u2") {
		t.Fatalf("sessions shared across users")
	}
}
