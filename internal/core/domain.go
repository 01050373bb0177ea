package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// MonthKey identifies a calendar month bucket. Its string form is "YYYY-MM".
	MonthKey struct {
		Year  int
		Month time.Month
	}

	Bill struct {
		ID             string
		Name           string
		Amount         decimal.Decimal
		PaymentDate    int // day of month, 1..31 when entered through the API
		Recurring      bool
		PaymentAccount string
	}

	// MonthSnapshot is the income and bills recorded for one month.
	MonthSnapshot struct {
		Month         MonthKey
		MonthlyIncome decimal.Decimal
		Bills         []Bill
	}

	// LegacyUserRecord is the flat, pre-monthly shape of a user's data.
	LegacyUserRecord struct {
		UserID        string
		MonthlyIncome decimal.Decimal
		Bills         []Bill
	}

	// BillInput is a bill as submitted by a client, before normalization.
	// Numeric fields may be NaN when the client sent something unparseable.
	BillInput struct {
		Name           string
		Amount         float64
		PaymentDate    float64
		Recurring      bool
		PaymentAccount string
	}

	Profile struct {
		UserID        string
		HouseholdSize int
		Location      string
		Occupation    string
		Currency      string
	}
)

var (
	ErrInvalidMonthKey    = errors.New("invalid month key")
	ErrEmptyName          = errors.New("empty bill name")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPaymentDate = errors.New("invalid payment date")
)

// NewMonthKey returns the key for year and month.
func NewMonthKey(year int, month time.Month) MonthKey {
	return MonthKey{Year: year, Month: month}
}

// MonthKeyOf returns the key of the month containing t, in t's location.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// ParseMonthKey parses the strict "YYYY-MM" form.
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	if len(s) != 7 || s[4] != '-' {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1 {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	m, err := strconv.Atoi(s[5:])
	if err != nil || m < 1 || m > 12 {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	return MonthKey{Year: y, Month: time.Month(m)}, nil
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k MonthKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0
}

func (k MonthKey) Validate() error {
	if k.Year < 1 || k.Year > 9999 || k.Month < time.January || k.Month > time.December {
		return fmt.Errorf("%w: %d-%d", ErrInvalidMonthKey, k.Year, int(k.Month))
	}
	return nil
}

// Before reports whether k is chronologically earlier than other.
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Start returns midnight UTC of the first day of the month.
func (k MonthKey) Start() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// NewMonthSnapshot returns the zero-value snapshot for a month that has never been written.
func NewMonthSnapshot(k MonthKey) MonthSnapshot {
	return MonthSnapshot{Month: k, MonthlyIncome: decimal.Zero, Bills: []Bill{}}
}

// Validate applies the submission rules: non-blank name, finite positive
// amount, finite payment date.
func (in BillInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if !isFinite(in.Amount) || in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !isFinite(in.PaymentDate) {
		return ErrInvalidPaymentDate
	}
	return nil
}

// Bill converts an accepted input into a Bill without an ID.
func (in BillInput) Bill() Bill {
	return Bill{
		Name:           strings.TrimSpace(in.Name),
		Amount:         decimal.NewFromFloat(in.Amount),
		PaymentDate:    int(math.Max(math.MinInt32, math.Min(math.MaxInt32, in.PaymentDate))),
		Recurring:      in.Recurring,
		PaymentAccount: strings.TrimSpace(in.PaymentAccount),
	}
}

// NormalizeIncome clamps negative, NaN and infinite values to zero.
func NormalizeIncome(v float64) decimal.Decimal {
	if !isFinite(v) || v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
