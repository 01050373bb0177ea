package google

import (
	"context"
	"strings"
	"testing"
	"time"

	"balanceview/internal/core"
)

func TestQuoteTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc 2024-03", "'abc 2024-03'"},
		{"o'brien 2024-03", "'o''brien 2024-03'"},
	}
	for _, tt := range tests {
		if got := quoteTitle(tt.in); got != tt.want {
			t.Errorf("quoteTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	if _, err := New(context.Background(), " ", Credentials{JSON: "{}"}); err == nil {
		t.Fatalf("empty spreadsheet id accepted")
	}
	_, err := New(context.Background(), "sheet", Credentials{})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
	_, err = New(context.Background(), "sheet", Credentials{File: "/does/not/exist.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got %v", err)
	}
}

func TestExportWithoutService(t *testing.T) {
	c := &Client{}
	if err := c.ExportMonth(context.Background(), "u1", core.NewMonthSnapshot(core.NewMonthKey(2024, time.March))); err == nil {
		t.Fatalf("expected error without service")
	}
}
