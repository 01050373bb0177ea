// Package core provides money parsing and formatting utilities.
//
// This file contains the lenient number parsing used for client input and
// currency formatting backed by go-money's currency table.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

// ParseNumber parses a client supplied number. Both dot (12.34) and comma
// (12,34) decimal separators are accepted. It returns NaN instead of an
// error so callers can apply the same finiteness checks as for JSON numbers.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// NormalizeCurrency upper-cases code and falls back to DefaultCurrency when
// go-money does not know it.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || money.GetCurrency(code) == nil {
		return DefaultCurrency
	}
	return code
}

// FormatCurrency renders amount with the symbol and separators of code,
// e.g. "$1,225.00".
func FormatCurrency(amount decimal.Decimal, code string) string {
	code = NormalizeCurrency(code)
	cur := money.GetCurrency(code)

	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	if minor.BigInt().IsInt64() {
		return money.New(minor.IntPart(), code).Display()
	}
	return formatMinor(cur, minor)
}

// formatMinor lays out minor units that do not fit in an int64 the way
// go-money's Formatter does.
func formatMinor(cur *money.Currency, minor decimal.Decimal) string {
	sa := minor.Abs().BigInt().String()
	if len(sa) <= cur.Fraction {
		sa = strings.Repeat("0", cur.Fraction-len(sa)+1) + sa
	}
	if cur.Thousand != "" {
		for i := len(sa) - cur.Fraction - 3; i > 0; i -= 3 {
			sa = sa[:i] + cur.Thousand + sa[i:]
		}
	}
	if cur.Fraction > 0 {
		sa = sa[:len(sa)-cur.Fraction] + cur.Decimal + sa[len(sa)-cur.Fraction:]
	}
	sa = strings.Replace(cur.Template, "1", sa, 1)
	sa = strings.Replace(sa, "$", cur.Grapheme, 1)
	if minor.IsNegative() {
		sa = "-" + sa
	}
	return sa
}
