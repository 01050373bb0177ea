// Package advisor asks a generative model for a short review of one month
// of a user's budget.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"balanceview/internal/core"
	"balanceview/internal/log"
)

// ErrDisabled is returned when no model is configured.
var ErrDisabled = errors.New("advisor disabled")

// Generator turns a prompt into the model's JSON answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Advice is the model's answer. SummaryHTML is Summary rendered from markdown.
type Advice struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
	Insights        string   `json:"insights,omitempty"`
	SummaryHTML     string   `json:"summaryHtml"`
}

type Advisor struct {
	gen    Generator
	logger *log.Logger
}

// New returns an Advisor; a nil gen yields ErrDisabled from every call.
func New(gen Generator) *Advisor {
	return &Advisor{gen: gen, logger: log.Default(log.ComponentAdvisor)}
}

func (a *Advisor) Enabled() bool { return a != nil && a.gen != nil }

// Recommend reviews the month described by snap for the given profile.
func (a *Advisor) Recommend(ctx context.Context, snap core.MonthSnapshot, profile core.Profile) (Advice, error) {
	if !a.Enabled() {
		return Advice{}, ErrDisabled
	}

	raw, err := a.gen.Generate(ctx, Prompt(snap, profile))
	if err != nil {
		a.logger.ErrorContext(ctx, "Model call failed", log.FieldMonth, snap.Month.String(), log.FieldError, err)
		return Advice{}, fmt.Errorf("generate advice: %w", err)
	}

	var adv Advice
	if err := json.Unmarshal([]byte(stripFence(raw)), &adv); err != nil {
		return Advice{}, fmt.Errorf("decode advice: %w", err)
	}
	if strings.TrimSpace(adv.Summary) == "" {
		return Advice{}, errors.New("decode advice: empty summary")
	}
	if adv.Recommendations == nil {
		adv.Recommendations = []string{}
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(adv.Summary), &buf); err != nil {
		return Advice{}, fmt.Errorf("render summary: %w", err)
	}
	adv.SummaryHTML = buf.String()
	return adv, nil
}

// Prompt describes the month and profile to the model. Amounts use the
// profile's currency.
func Prompt(snap core.MonthSnapshot, profile core.Profile) string {
	cur := core.NormalizeCurrency(profile.Currency)
	sum := core.Summarize(snap)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful personal finance advisor. Analyze the following monthly budget and provide a brief summary and personalized recommendations. Use %s for every amount.\n\n", cur)
	fmt.Fprintf(&b, "Month: %s\n", snap.Month)
	fmt.Fprintf(&b, "Monthly Income: %s\n", core.FormatCurrency(sum.Income, cur))
	fmt.Fprintf(&b, "Total Bills: %s\n", core.FormatCurrency(sum.TotalBills, cur))
	fmt.Fprintf(&b, "Remaining Balance: %s\n", core.FormatCurrency(sum.Balance, cur))

	if profile.HouseholdSize > 0 || profile.Location != "" || profile.Occupation != "" {
		b.WriteString("\nUser Profile:\n")
		fmt.Fprintf(&b, "- Household size: %s\n", orUnspecified(profile.HouseholdSize, ""))
		fmt.Fprintf(&b, "- Location: %s\n", orUnspecified(0, profile.Location))
		fmt.Fprintf(&b, "- Occupation: %s\n", orUnspecified(0, profile.Occupation))
	}

	if len(snap.Bills) > 0 {
		bills := append([]core.Bill(nil), snap.Bills...)
		core.SortBills(bills)
		b.WriteString("\nBills breakdown:\n")
		for _, bill := range bills {
			fmt.Fprintf(&b, "- %s: %s", bill.Name, core.FormatCurrency(bill.Amount, cur))
			if bill.Recurring {
				b.WriteString(" (recurring)")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Provide:
1. A brief 1-2 sentence summary of their financial situation
2. 2-3 specific, actionable recommendations to improve their finances
3. If profile information is available, location-specific or occupation-specific insights

Keep recommendations practical, encouraging, and specific to their situation.`)
	return b.String()
}

func orUnspecified(n int, s string) string {
	switch {
	case n > 0:
		return fmt.Sprint(n)
	case s != "":
		return s
	default:
		return "Not specified"
	}
}

// stripFence removes a ```json fence some models wrap around JSON output.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
