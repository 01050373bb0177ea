package http

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.stop()
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatalf("first two requests should pass")
	}
	if rl.allow("a") {
		t.Fatalf("third request in the window should be limited")
	}
	if !rl.allow("b") {
		t.Fatalf("clients are limited independently")
	}

	now = now.Add(time.Minute)
	if !rl.allow("a") {
		t.Fatalf("new window should reset the budget")
	}

	now = now.Add(11 * time.Minute)
	if n := rl.cleanupStaleEntries(); n != 2 {
		t.Fatalf("cleanup removed %d entries", n)
	}
	rl.stop() // idempotent
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:1234", "", "203.0.113.7"},
		{"untrusted proxy header ignored", "203.0.113.7:1234", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:1234", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	if !detectSuspiciousRequest(httptest.NewRequest("GET", "/api/../../etc/passwd", nil)) {
		t.Fatalf("path traversal not flagged")
	}
	if detectSuspiciousRequest(httptest.NewRequest("GET", "/api/months/2024-03", nil)) {
		t.Fatalf("normal request flagged")
	}
}
