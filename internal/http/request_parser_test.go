package http

import (
	"encoding/json"
	"math"
	"testing"
)

func TestBillRequestInput(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantAmount  float64
		wantDate    float64
		wantNaNDate bool
	}{
		{"numbers", `{"name":"Rent","amount":1200,"paymentDate":1}`, 1200, 1, false},
		{"comma string", `{"name":"Rent","amount":"12,5","paymentDate":"3"}`, 12.5, 3, false},
		{"bool amount", `{"name":"Rent","amount":true,"paymentDate":1}`, math.NaN(), 1, false},
		{"missing date", `{"name":"Rent","amount":1}`, 1, 0, true},
		{"null date", `{"name":"Rent","amount":1,"paymentDate":null}`, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req billRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			in := req.input()
			if math.IsNaN(tt.wantAmount) {
				if !math.IsNaN(in.Amount) {
					t.Fatalf("amount = %v, want NaN", in.Amount)
				}
			} else if in.Amount != tt.wantAmount {
				t.Fatalf("amount = %v, want %v", in.Amount, tt.wantAmount)
			}
			if tt.wantNaNDate != math.IsNaN(in.PaymentDate) {
				t.Fatalf("payment date = %v", in.PaymentDate)
			}
			if !tt.wantNaNDate && in.PaymentDate != tt.wantDate {
				t.Fatalf("payment date = %v, want %v", in.PaymentDate, tt.wantDate)
			}
		})
	}
}

func TestProfileRequestDefaults(t *testing.T) {
	p := profileRequest{HouseholdSize: 0, Location: " Porto\x00 ", Currency: "zzz"}.profile("u1")
	if p.HouseholdSize != 1 || p.Location != "Porto" || p.Currency != "USD" || p.UserID != "u1" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Rent  ", "Rent"},
		{"Gas\x07 bill", "Gas bill"},
		{"line\nbreak", "line\nbreak"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
