package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"balanceview/internal/core"
)

const maxBodyBytes = 64 << 10

// CurrentMonthAlias stands for the month containing "now" in URLs.
const CurrentMonthAlias = "current"

// monthParam resolves the {month} URL segment.
func (s *Server) monthParam(r *http.Request) (core.MonthKey, error) {
	raw := chi.URLParam(r, "month")
	if raw == CurrentMonthAlias {
		return s.deps.Ledger.CurrentMonth(), nil
	}
	return core.ParseMonthKey(raw)
}

// parseLimit reads ?limit=N; missing or invalid means unbounded.
func parseLimit(r *http.Request) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body too large")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
