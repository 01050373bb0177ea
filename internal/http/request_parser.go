package http

import (
	"bytes"
	"encoding/json"
	"math"

	"balanceview/internal/core"
)

// flexNumber accepts a JSON number or a numeric string ("12.5", "12,5").
// Anything else decodes to NaN so the ledger's validation decides.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = flexNumber(core.ParseNumber(s))
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			*n = flexNumber(math.NaN())
			return nil
		}
		*n = flexNumber(f)
	}
	return nil
}

// value returns NaN for a missing field.
func (n *flexNumber) value() float64 {
	if n == nil {
		return math.NaN()
	}
	return float64(*n)
}

type incomeRequest struct {
	MonthlyIncome *flexNumber `json:"monthlyIncome"`
}

type billRequest struct {
	Name           string      `json:"name"`
	Amount         *flexNumber `json:"amount"`
	PaymentDate    *flexNumber `json:"paymentDate"`
	Recurring      bool        `json:"recurring"`
	PaymentAccount string      `json:"paymentAccount"`
}

func (b billRequest) input() core.BillInput {
	return core.BillInput{
		Name:           sanitizeInput(b.Name),
		Amount:         b.Amount.value(),
		PaymentDate:    b.PaymentDate.value(),
		Recurring:      b.Recurring,
		PaymentAccount: sanitizeInput(b.PaymentAccount),
	}
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type profileRequest struct {
	HouseholdSize int    `json:"householdSize"`
	Location      string `json:"location"`
	Occupation    string `json:"occupation"`
	Currency      string `json:"currency"`
}

func (p profileRequest) profile(userID string) core.Profile {
	size := p.HouseholdSize
	if size < 1 {
		size = 1
	}
	return core.Profile{
		UserID:        userID,
		HouseholdSize: size,
		Location:      sanitizeInput(p.Location),
		Occupation:    sanitizeInput(p.Occupation),
		Currency:      core.NormalizeCurrency(p.Currency),
	}
}

type adviceRequest struct {
	Month string `json:"month"`
}
