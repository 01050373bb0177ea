package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"balanceview/internal/core"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

func march() core.MonthSnapshot {
	return core.MonthSnapshot{
		Month:         core.NewMonthKey(2024, time.March),
		MonthlyIncome: decimal.NewFromInt(2500),
		Bills: []core.Bill{
			{ID: "b1", Name: "Rent", Amount: decimal.NewFromInt(1200), PaymentDate: 1, Recurring: true},
			{ID: "b2", Name: "Electric", Amount: decimal.NewFromInt(75), PaymentDate: 15},
		},
	}
}

func TestPrompt(t *testing.T) {
	p := Prompt(march(), core.Profile{Currency: "usd", HouseholdSize: 3, Location: "Lisbon"})
	for _, want := range []string{
		"Monthly Income: $2,500.00",
		"Total Bills: $1,275.00",
		"Remaining Balance: $1,225.00",
		"- Household size: 3",
		"- Location: Lisbon",
		"- Occupation: Not specified",
		"- Rent: $1,200.00 (recurring)",
		"- Electric: $75.00\n",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}

	bare := Prompt(core.NewMonthSnapshot(core.NewMonthKey(2024, time.March)), core.Profile{})
	if strings.Contains(bare, "User Profile") || strings.Contains(bare, "Bills breakdown") {
		t.Errorf("empty profile and bills should be omitted:\n%s", bare)
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		genErr  error
		wantErr bool
	}{
		{
			name:   "plain JSON",
			answer: `{"summary":"You keep **49%** of income.","recommendations":["Save more"],"insights":"Lisbon rents are high"}`,
		},
		{
			name:   "fenced JSON",
			answer: "```json\n{\"summary\":\"Fine\",\"recommendations\":[]}\n```",
		},
		{name: "not JSON", answer: "sure, here is advice", wantErr: true},
		{name: "empty summary", answer: `{"summary":"","recommendations":["x"]}`, wantErr: true},
		{name: "model error", genErr: errors.New("quota"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(generatorFunc(func(context.Context, string) (string, error) { return tt.answer, tt.genErr }))
			adv, err := a.Recommend(context.Background(), march(), core.Profile{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if adv.Recommendations == nil {
				t.Fatalf("recommendations should never be nil")
			}
			if !strings.HasPrefix(adv.SummaryHTML, "<p>") {
				t.Fatalf("summary not rendered: %q", adv.SummaryHTML)
			}
		})
	}
}

func TestRecommendRendersMarkdown(t *testing.T) {
	a := New(generatorFunc(func(context.Context, string) (string, error) {
		return `{"summary":"You keep **49%** <script>x</script>","recommendations":["a","b"]}`, nil
	}))
	adv, err := a.Recommend(context.Background(), march(), core.Profile{})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if !strings.Contains(adv.SummaryHTML, "<strong>49%</strong>") {
		t.Fatalf("markdown not rendered: %q", adv.SummaryHTML)
	}
	if strings.Contains(adv.SummaryHTML, "<script>") {
		t.Fatalf("raw HTML should not pass through: %q", adv.SummaryHTML)
	}
}

func TestDisabled(t *testing.T) {
	var a *Advisor
	if a.Enabled() {
		t.Fatalf("nil advisor enabled")
	}
	if _, err := New(nil).Recommend(context.Background(), march(), core.Profile{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewGemini(context.Background(), "", "m"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v", err)
	}
}
