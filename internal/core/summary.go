package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// UnassignedAccount labels bills without a payment account in breakdowns.
const UnassignedAccount = "Unassigned"

// MonthSummary is the computed balance of one month.
type MonthSummary struct {
	Month      MonthKey
	Income     decimal.Decimal
	TotalBills decimal.Decimal
	Balance    decimal.Decimal
	BillCount  int
}

// AccountShare is the amount of bills funded by one payment account.
type AccountShare struct {
	Account string
	Amount  decimal.Decimal
	Percent decimal.Decimal // of total bills, two decimals
	Count   int
}

// Breakdown groups a month's bills by payment account.
type Breakdown struct {
	Accounts  []AccountShare
	Remaining decimal.Decimal // income left after bills, never negative
}

// Summarize computes total bills and remaining balance. The balance may be negative.
func Summarize(s MonthSnapshot) MonthSummary {
	total := decimal.Zero
	for _, b := range s.Bills {
		total = total.Add(b.Amount)
	}
	return MonthSummary{
		Month:      s.Month,
		Income:     s.MonthlyIncome,
		TotalBills: total,
		Balance:    s.MonthlyIncome.Sub(total),
		BillCount:  len(s.Bills),
	}
}

// BreakdownOf groups bills by payment account, largest amount first.
func BreakdownOf(s MonthSnapshot) Breakdown {
	byAccount := make(map[string]*AccountShare)
	total := decimal.Zero
	for _, b := range s.Bills {
		name := b.PaymentAccount
		if name == "" {
			name = UnassignedAccount
		}
		share, ok := byAccount[name]
		if !ok {
			share = &AccountShare{Account: name, Amount: decimal.Zero}
			byAccount[name] = share
		}
		share.Amount = share.Amount.Add(b.Amount)
		share.Count++
		total = total.Add(b.Amount)
	}

	out := Breakdown{Accounts: make([]AccountShare, 0, len(byAccount)), Remaining: decimal.Zero}
	for _, share := range byAccount {
		if total.IsPositive() {
			share.Percent = share.Amount.Mul(decimal.NewFromInt(100)).Div(total).Round(2)
		} else {
			share.Percent = decimal.Zero
		}
		out.Accounts = append(out.Accounts, *share)
	}
	sort.Slice(out.Accounts, func(i, j int) bool {
		if c := out.Accounts[i].Amount.Cmp(out.Accounts[j].Amount); c != 0 {
			return c > 0
		}
		return out.Accounts[i].Account < out.Accounts[j].Account
	})

	if remaining := s.MonthlyIncome.Sub(total); remaining.IsPositive() {
		out.Remaining = remaining
	}
	return out
}

// SortBills orders bills by payment date, then name, then id.
func SortBills(bills []Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		if bills[i].PaymentDate != bills[j].PaymentDate {
			return bills[i].PaymentDate < bills[j].PaymentDate
		}
		if bills[i].Name != bills[j].Name {
			return bills[i].Name < bills[j].Name
		}
		return bills[i].ID < bills[j].ID
	})
}

// SortMonthsDesc orders month keys most recent first.
func SortMonthsDesc(keys []MonthKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[j].Before(keys[i]) })
}
