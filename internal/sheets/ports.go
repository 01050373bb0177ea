package sheets

import (
	"context"

	"balanceview/internal/core"
)

// Ports for outbound adapters.
type (
	// MonthExporter mirrors one month of a user's ledger to an external sheet.
	// Exporting the same month twice overwrites the previous copy.
	MonthExporter interface {
		ExportMonth(ctx context.Context, userID string, snapshot core.MonthSnapshot) error
	}
)

// Header is the first row written by exporters.
var Header = []string{"Name", "Amount", "Payment date", "Recurring", "Account"}

// Rows flattens a snapshot into header plus one row per bill, followed by
// income, total and balance lines.
func Rows(s core.MonthSnapshot) [][]any {
	bills := append([]core.Bill(nil), s.Bills...)
	core.SortBills(bills)

	rows := make([][]any, 0, len(bills)+5)
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	rows = append(rows, header)

	for _, b := range bills {
		recurring := "no"
		if b.Recurring {
			recurring = "yes"
		}
		rows = append(rows, []any{b.Name, b.Amount.StringFixed(2), b.PaymentDate, recurring, b.PaymentAccount})
	}

	sum := core.Summarize(s)
	rows = append(rows,
		[]any{},
		[]any{"Income", sum.Income.StringFixed(2)},
		[]any{"Total bills", sum.TotalBills.StringFixed(2)},
		[]any{"Balance", sum.Balance.StringFixed(2)},
	)
	return rows
}

// TabTitle names the sheet tab holding a user's month.
func TabTitle(userID string, month core.MonthKey) string {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return short + " " + month.String()
}
