package core

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func bill(name, amount, account string) Bill {
	return Bill{Name: name, Amount: decimal.RequireFromString(amount), PaymentAccount: account}
}

func TestSummarizeEndToEnd(t *testing.T) {
	s := MonthSnapshot{
		Month:         NewMonthKey(2024, time.March),
		MonthlyIncome: decimal.NewFromInt(2500),
		Bills:         []Bill{bill("Rent", "1200", ""), bill("Electric", "75", "")},
	}
	sum := Summarize(s)
	if !sum.TotalBills.Equal(decimal.NewFromInt(1275)) {
		t.Fatalf("expected total 1275, got %s", sum.TotalBills)
	}
	if !sum.Balance.Equal(decimal.NewFromInt(1225)) {
		t.Fatalf("expected balance 1225, got %s", sum.Balance)
	}
	if sum.BillCount != 2 {
		t.Fatalf("expected 2 bills, got %d", sum.BillCount)
	}
}

func TestSummarizeNegativeBalance(t *testing.T) {
	s := MonthSnapshot{MonthlyIncome: decimal.NewFromInt(100), Bills: []Bill{bill("Rent", "150.50", "")}}
	if got := Summarize(s).Balance; got.String() != "-50.5" {
		t.Fatalf("expected -50.5, got %s", got)
	}
}

func TestBreakdownOf(t *testing.T) {
	s := MonthSnapshot{
		MonthlyIncome: decimal.NewFromInt(1000),
		Bills: []Bill{
			bill("Rent", "600", "Checking"),
			bill("Phone", "50", "Credit card"),
			bill("Gym", "50", ""),
			bill("Internet", "100", "Credit card"),
		},
	}
	bd := BreakdownOf(s)
	if len(bd.Accounts) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(bd.Accounts))
	}
	if bd.Accounts[0].Account != "Checking" || bd.Accounts[0].Percent.String() != "75" {
		t.Fatalf("unexpected first share %+v", bd.Accounts[0])
	}
	if bd.Accounts[1].Account != "Credit card" || bd.Accounts[1].Count != 2 {
		t.Fatalf("unexpected second share %+v", bd.Accounts[1])
	}
	if bd.Accounts[2].Account != UnassignedAccount {
		t.Fatalf("expected unassigned bucket, got %q", bd.Accounts[2].Account)
	}
	if !bd.Remaining.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected remaining 200, got %s", bd.Remaining)
	}
}

func TestBreakdownOverspentHasNoRemaining(t *testing.T) {
	bd := BreakdownOf(MonthSnapshot{MonthlyIncome: decimal.NewFromInt(10), Bills: []Bill{bill("Rent", "20", "")}})
	if !bd.Remaining.IsZero() {
		t.Fatalf("expected zero remaining, got %s", bd.Remaining)
	}
}

func TestSortMonthsDesc(t *testing.T) {
	keys := []MonthKey{
		NewMonthKey(2024, time.January),
		NewMonthKey(2024, time.March),
		NewMonthKey(2023, time.December),
	}
	SortMonthsDesc(keys)
	want := []string{"2024-03", "2024-01", "2023-12"}
	for i, k := range keys {
		if k.String() != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], k)
		}
	}
}

func TestParseNumber(t *testing.T) {
	if got := ParseNumber("12,50"); got != 12.5 {
		t.Fatalf("expected 12.5, got %v", got)
	}
	for _, in := range []string{"", "abc", "1.2.3"} {
		if got := ParseNumber(in); !math.IsNaN(got) {
			t.Fatalf("%q expected NaN, got %v", in, got)
		}
	}
}

func TestFormatCurrency(t *testing.T) {
	if got := FormatCurrency(decimal.NewFromInt(1225), "USD"); got != "$1,225.00" {
		t.Fatalf("expected $1,225.00, got %s", got)
	}
	if got := FormatCurrency(decimal.RequireFromString("9.5"), "nope"); got != "$9.50" {
		t.Fatalf("expected fallback to USD, got %s", got)
	}
	huge := decimal.RequireFromString("123456789012345678901.5")
	if got := FormatCurrency(huge, "USD"); got != "$123,456,789,012,345,678,901.50" {
		t.Fatalf("expected grouped huge amount, got %s", got)
	}
	if got := FormatCurrency(huge.Neg(), "USD"); got != "-$123,456,789,012,345,678,901.50" {
		t.Fatalf("expected negative huge amount, got %s", got)
	}
	if got := NormalizeCurrency("eur"); got != "EUR" {
		t.Fatalf("expected EUR, got %s", got)
	}
}
