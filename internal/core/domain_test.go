package core

import (
	"math"
	"testing"
	"time"
)

func TestParseMonthKey(t *testing.T) {
	cases := []struct {
		in  string
		out MonthKey
		ok  bool
	}{
		{"2024-03", NewMonthKey(2024, time.March), true},
		{"1999-12", NewMonthKey(1999, time.December), true},
		{" 2024-01 ", NewMonthKey(2024, time.January), true},
		{"2024-3", MonthKey{}, false},
		{"2024-13", MonthKey{}, false},
		{"2024-00", MonthKey{}, false},
		{"24-03", MonthKey{}, false},
		{"2024/03", MonthKey{}, false},
		{"", MonthKey{}, false},
	}
	for _, tc := range cases {
		got, err := ParseMonthKey(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMonthKeyString(t *testing.T) {
	if got := NewMonthKey(2024, time.March).String(); got != "2024-03" {
		t.Fatalf("expected 2024-03, got %s", got)
	}
	if got := MonthKeyOf(time.Date(2025, time.November, 30, 23, 0, 0, 0, time.UTC)).String(); got != "2025-11" {
		t.Fatalf("expected 2025-11, got %s", got)
	}
}

func TestMonthKeyLexicalOrderIsChronological(t *testing.T) {
	a := NewMonthKey(2023, time.December)
	b := NewMonthKey(2024, time.January)
	if !a.Before(b) {
		t.Fatalf("expected %v before %v", a, b)
	}
	if !(a.String() < b.String()) {
		t.Fatalf("expected %q < %q", a.String(), b.String())
	}
}

func TestBillInputValidate(t *testing.T) {
	good := BillInput{Name: "Rent", Amount: 1200, PaymentDate: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []BillInput{
		{Name: "", Amount: 10, PaymentDate: 1},
		{Name: "   ", Amount: 10, PaymentDate: 1},
		{Name: "x", Amount: 0, PaymentDate: 1},
		{Name: "x", Amount: -5, PaymentDate: 1},
		{Name: "x", Amount: math.NaN(), PaymentDate: 1},
		{Name: "x", Amount: math.Inf(1), PaymentDate: 1},
		{Name: "x", Amount: 10, PaymentDate: math.NaN()},
	}
	for i, in := range bads {
		if err := in.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestBillInputKeepsOutOfRangePaymentDate(t *testing.T) {
	b := BillInput{Name: " Gym ", Amount: 30, PaymentDate: 45}.Bill()
	if b.PaymentDate != 45 {
		t.Fatalf("expected payment date kept as 45, got %d", b.PaymentDate)
	}
	if b.Name != "Gym" {
		t.Fatalf("expected trimmed name, got %q", b.Name)
	}
}

func TestBillInputClampsHugePaymentDate(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{1e300, math.MaxInt32},
		{-1e300, math.MinInt32},
		{31.9, 31},
	}
	for _, tt := range tests {
		if got := (BillInput{Name: "Rent", Amount: 1, PaymentDate: tt.in}).Bill().PaymentDate; got != tt.want {
			t.Fatalf("payment date %v stored as %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIncome(t *testing.T) {
	for _, v := range []float64{-1, -0.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := NormalizeIncome(v); !got.IsZero() {
			t.Fatalf("NormalizeIncome(%v) = %s, want 0", v, got)
		}
	}
	if got := NormalizeIncome(2500.5); got.String() != "2500.5" {
		t.Fatalf("expected 2500.5, got %s", got)
	}
}

func TestNewMonthSnapshot(t *testing.T) {
	s := NewMonthSnapshot(NewMonthKey(2024, time.May))
	if !s.MonthlyIncome.IsZero() || len(s.Bills) != 0 || s.Bills == nil {
		t.Fatalf("unexpected zero snapshot %+v", s)
	}
}
