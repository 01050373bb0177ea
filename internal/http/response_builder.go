package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"balanceview/internal/core"
	"balanceview/internal/migration"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Error sets the standard error envelope as body.
func (b *JSONResponseBuilder) Error(msg string) *JSONResponseBuilder {
	b.body = map[string]any{"error": map[string]string{"message": msg}}
	return b
}

// Write sends the response. A nil body sends headers only.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	NewJSONResponse().Status(status).Error(msg).Write(w)
}

// accepted answers a write that was queued but not yet persisted.
func accepted(w http.ResponseWriter, kind string, month core.MonthKey) {
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"kind":   kind,
		"month":  month.String(),
	})
}

// Response shapes.
type (
	billDTO struct {
		ID             string  `json:"id"`
		Name           string  `json:"name"`
		Amount         float64 `json:"amount"`
		PaymentDate    int     `json:"paymentDate"`
		Recurring      bool    `json:"recurring"`
		PaymentAccount string  `json:"paymentAccount"`
	}

	summaryDTO struct {
		Month      string  `json:"month"`
		Income     float64 `json:"monthlyIncome"`
		TotalBills float64 `json:"totalBills"`
		Balance    float64 `json:"balance"`
		BillCount  int     `json:"billCount"`
	}

	accountDTO struct {
		Account string  `json:"account"`
		Amount  float64 `json:"amount"`
		Percent float64 `json:"percent"`
		Count   int     `json:"count"`
	}

	monthDTO struct {
		Month         string       `json:"month"`
		MonthlyIncome float64      `json:"monthlyIncome"`
		Bills         []billDTO    `json:"bills"`
		Summary       summaryDTO   `json:"summary"`
		Accounts      []accountDTO `json:"accounts"`
		Remaining     float64      `json:"remaining"`
		Formatted     formatted    `json:"formatted"`
	}

	formatted struct {
		Income     string `json:"monthlyIncome"`
		TotalBills string `json:"totalBills"`
		Balance    string `json:"balance"`
	}

	migrationDTO struct {
		State  migration.State `json:"state"`
		Error  string          `json:"error,omitempty"`
		Result *resultDTO      `json:"result,omitempty"`
	}

	resultDTO struct {
		Month          string `json:"month"`
		BillCount      int    `json:"billCount"`
		IncomeMerged   bool   `json:"incomeMerged"`
		Retention      string `json:"retention"`
		Purged         bool   `json:"purged"`
		PurgeScheduled bool   `json:"purgeScheduled"`
	}

	profileDTO struct {
		HouseholdSize int    `json:"householdSize"`
		Location      string `json:"location"`
		Occupation    string `json:"occupation"`
		Currency      string `json:"currency"`
	}

	eventDTO struct {
		Month  string    `json:"month"`
		Kind   string    `json:"kind"`
		BillID string    `json:"billId,omitempty"`
		At     time.Time `json:"at"`
	}
)

func toFloat(d decimal.Decimal) float64 { return d.InexactFloat64() }

func toSummaryDTO(s core.MonthSummary) summaryDTO {
	return summaryDTO{
		Month:      s.Month.String(),
		Income:     toFloat(s.Income),
		TotalBills: toFloat(s.TotalBills),
		Balance:    toFloat(s.Balance),
		BillCount:  s.BillCount,
	}
}

// toMonthDTO renders a snapshot with its summary and account breakdown.
// Formatted amounts use currency.
func toMonthDTO(s core.MonthSnapshot, currency string) monthDTO {
	bills := append([]core.Bill(nil), s.Bills...)
	core.SortBills(bills)

	out := monthDTO{
		Month:         s.Month.String(),
		MonthlyIncome: toFloat(s.MonthlyIncome),
		Bills:         make([]billDTO, 0, len(bills)),
	}
	for _, b := range bills {
		out.Bills = append(out.Bills, billDTO{
			ID:             b.ID,
			Name:           b.Name,
			Amount:         toFloat(b.Amount),
			PaymentDate:    b.PaymentDate,
			Recurring:      b.Recurring,
			PaymentAccount: b.PaymentAccount,
		})
	}

	sum := core.Summarize(s)
	out.Summary = toSummaryDTO(sum)

	br := core.BreakdownOf(s)
	out.Accounts = make([]accountDTO, 0, len(br.Accounts))
	for _, a := range br.Accounts {
		out.Accounts = append(out.Accounts, accountDTO{
			Account: a.Account,
			Amount:  toFloat(a.Amount),
			Percent: toFloat(a.Percent),
			Count:   a.Count,
		})
	}
	out.Remaining = toFloat(br.Remaining)
	out.Formatted = formatted{
		Income:     core.FormatCurrency(sum.Income, currency),
		TotalBills: core.FormatCurrency(sum.TotalBills, currency),
		Balance:    core.FormatCurrency(sum.Balance, currency),
	}
	return out
}

func toMigrationDTO(st migration.Status) migrationDTO {
	out := migrationDTO{State: st.State, Error: st.Error}
	if st.Result != nil {
		out.Result = toResultDTO(*st.Result)
	}
	return out
}

func toResultDTO(r migration.Result) *resultDTO {
	return &resultDTO{
		Month:          r.Month.String(),
		BillCount:      r.BillCount,
		IncomeMerged:   r.IncomeMerged,
		Retention:      string(r.Retention),
		Purged:         r.Purged,
		PurgeScheduled: r.PurgeScheduled,
	}
}

func toProfileDTO(p core.Profile) profileDTO {
	return profileDTO{
		HouseholdSize: p.HouseholdSize,
		Location:      p.Location,
		Occupation:    p.Occupation,
		Currency:      p.Currency,
	}
}
