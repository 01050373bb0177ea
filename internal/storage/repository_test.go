package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"balanceview/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	repo.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { repo.Close() })
	return repo
}

func month(t *testing.T, s string) core.MonthKey {
	t.Helper()
	mk, err := core.ParseMonthKey(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return mk
}

func TestGetMonthAbsent(t *testing.T) {
	repo := newTestRepo(t)
	snap, ok, err := repo.GetMonth(context.Background(), "u1", month(t, "2024-03"))
	if err != nil {
		t.Fatalf("get month: %v", err)
	}
	if ok {
		t.Fatalf("expected month to be absent")
	}
	if !snap.MonthlyIncome.IsZero() || len(snap.Bills) != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}

func TestInsertBillCreatesMonth(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mk := month(t, "2024-03")

	id, err := repo.InsertBill(ctx, "u1", mk, core.Bill{Name: "Rent", Amount: decimal.NewFromInt(1200), PaymentDate: 1})
	if err != nil {
		t.Fatalf("insert bill: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	snap, ok, err := repo.GetMonth(ctx, "u1", mk)
	if err != nil || !ok {
		t.Fatalf("get month: ok=%v err=%v", ok, err)
	}
	if !snap.MonthlyIncome.IsZero() {
		t.Fatalf("implicit month should default income to 0, got %s", snap.MonthlyIncome)
	}
	if len(snap.Bills) != 1 || snap.Bills[0].ID != id || snap.Bills[0].Name != "Rent" {
		t.Fatalf("unexpected bills: %+v", snap.Bills)
	}
}

func TestMergeIncomeKeepsBills(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mk := month(t, "2024-03")

	if _, err := repo.InsertBill(ctx, "u1", mk, core.Bill{Name: "Gym", Amount: decimal.NewFromInt(30), PaymentDate: 5}); err != nil {
		t.Fatalf("insert bill: %v", err)
	}
	if err := repo.MergeIncome(ctx, "u1", mk, decimal.NewFromInt(2500)); err != nil {
		t.Fatalf("merge income: %v", err)
	}
	if err := repo.MergeIncome(ctx, "u1", mk, decimal.RequireFromString("2600.50")); err != nil {
		t.Fatalf("merge income: %v", err)
	}

	snap, _, err := repo.GetMonth(ctx, "u1", mk)
	if err != nil {
		t.Fatalf("get month: %v", err)
	}
	if snap.MonthlyIncome.String() != "2600.5" {
		t.Fatalf("income = %s, want 2600.5", snap.MonthlyIncome)
	}
	if len(snap.Bills) != 1 {
		t.Fatalf("bills lost by income merge: %+v", snap.Bills)
	}
}

func TestDeleteBillUnknownID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mk := month(t, "2024-03")

	if _, err := repo.InsertBill(ctx, "u1", mk, core.Bill{Name: "Rent", Amount: decimal.NewFromInt(1200), PaymentDate: 1}); err != nil {
		t.Fatalf("insert bill: %v", err)
	}
	deleted, err := repo.DeleteBill(ctx, "u1", mk, "missing")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatalf("unknown id reported as deleted")
	}
	bills, _ := repo.ListBills(ctx, "u1", mk)
	if len(bills) != 1 {
		t.Fatalf("bills changed: %+v", bills)
	}
}

func TestDeleteBillScopedToUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mk := month(t, "2024-03")

	id, err := repo.InsertBill(ctx, "u1", mk, core.Bill{Name: "Rent", Amount: decimal.NewFromInt(1200), PaymentDate: 1})
	if err != nil {
		t.Fatalf("insert bill: %v", err)
	}
	if deleted, _ := repo.DeleteBill(ctx, "u2", mk, id); deleted {
		t.Fatalf("another user deleted the bill")
	}
	if deleted, _ := repo.DeleteBill(ctx, "u1", mk, id); !deleted {
		t.Fatalf("owner could not delete the bill")
	}
}

func TestListMonthsDescending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, k := range []string{"2024-01", "2024-03", "2023-12"} {
		if err := repo.MergeIncome(ctx, "u1", month(t, k), decimal.NewFromInt(100)); err != nil {
			t.Fatalf("merge %s: %v", k, err)
		}
	}
	if err := repo.MergeIncome(ctx, "u2", month(t, "2025-01"), decimal.NewFromInt(1)); err != nil {
		t.Fatalf("merge other user: %v", err)
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"2024-03", "2024-01", "2023-12"}},
		{2, []string{"2024-03", "2024-01"}},
	}
	for _, tt := range tests {
		months, err := repo.ListMonths(ctx, "u1", tt.limit)
		if err != nil {
			t.Fatalf("list months: %v", err)
		}
		if len(months) != len(tt.want) {
			t.Fatalf("limit %d: got %d months, want %d", tt.limit, len(months), len(tt.want))
		}
		for i, m := range months {
			if m.Month.String() != tt.want[i] {
				t.Errorf("limit %d: months[%d] = %s, want %s", tt.limit, i, m.Month, tt.want[i])
			}
		}
	}
}

func TestCommitBatchAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mk := month(t, "2024-03")

	b := NewBatch()
	b.MergeIncome("u1", mk, decimal.NewFromInt(2500))
	b.CreateBill("u1", mk, core.Bill{Name: "Rent", Amount: decimal.NewFromInt(1200), PaymentDate: 1, Recurring: true})
	b.CreateBill("u1", mk, core.Bill{Name: "Electric", Amount: decimal.NewFromInt(75), PaymentDate: 10, Recurring: true})
	b.RecordMigration("u1", mk, 2)

	for i := 0; i < b.Len(); i++ {
		b.FailAt(i)
		err := repo.CommitBatch(ctx, b)
		if !errors.Is(err, ErrInjectedFailure) {
			t.Fatalf("fail at %d: got %v", i, err)
		}
		if _, ok, _ := repo.GetMonth(ctx, "u1", mk); ok {
			t.Fatalf("fail at %d: month written by a failed batch", i)
		}
		if marked, _ := repo.HasMigrationMarker(ctx, "u1"); marked {
			t.Fatalf("fail at %d: marker written by a failed batch", i)
		}
	}

	b.FailAt(-1)
	if err := repo.CommitBatch(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	snap, ok, err := repo.GetMonth(ctx, "u1", mk)
	if err != nil || !ok {
		t.Fatalf("get month: ok=%v err=%v", ok, err)
	}
	if !snap.MonthlyIncome.Equal(decimal.NewFromInt(2500)) || len(snap.Bills) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if marked, _ := repo.HasMigrationMarker(ctx, "u1"); !marked {
		t.Fatalf("expected marker after commit")
	}
}

func TestLegacyRecordRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	has, err := repo.HasLegacyBills(ctx, "u1")
	if err != nil || has {
		t.Fatalf("expected no legacy bills: has=%v err=%v", has, err)
	}

	err = repo.SaveLegacyRecord(ctx, core.LegacyUserRecord{
		UserID:        "u1",
		MonthlyIncome: decimal.NewFromInt(3000),
		Bills: []core.Bill{
			{Name: "Rent", Amount: decimal.NewFromInt(1200), PaymentDate: 1},
			{Name: "Phone", Amount: decimal.NewFromInt(40), PaymentDate: 20, PaymentAccount: "Credit card"},
		},
	})
	if err != nil {
		t.Fatalf("save legacy: %v", err)
	}

	if has, _ := repo.HasLegacyBills(ctx, "u1"); !has {
		t.Fatalf("expected legacy bills")
	}
	rec, err := repo.GetLegacyRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("get legacy: %v", err)
	}
	if !rec.MonthlyIncome.Equal(decimal.NewFromInt(3000)) || len(rec.Bills) != 2 {
		t.Fatalf("unexpected legacy record: %+v", rec)
	}

	n, err := repo.PurgeLegacy(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	if has, _ := repo.HasLegacyBills(ctx, "u1"); has {
		t.Fatalf("legacy bills survived purge")
	}
}

func TestUsersAndProfiles(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := &User{Email: "Ada@Example.com", DisplayName: "Ada", PasswordHash: "hash"}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := repo.CreateUser(ctx, &User{Email: "ada@example.com", PasswordHash: "x"}); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("duplicate email: got %v", err)
	}

	got, err := repo.GetUserByEmail(ctx, "ADA@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("get by email: %+v %v", got, err)
	}
	if _, err := repo.GetUserByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p, err := repo.GetProfile(ctx, u.ID)
	if err != nil || p.Currency != core.DefaultCurrency || p.HouseholdSize != 1 {
		t.Fatalf("default profile: %+v %v", p, err)
	}
	p.Currency = "eur"
	p.Location = "Milan"
	if err := repo.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	p, _ = repo.GetProfile(ctx, u.ID)
	if p.Currency != "EUR" || p.Location != "Milan" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}
