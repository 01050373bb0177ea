package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"balanceview/internal/auth"
	"balanceview/internal/core"
	"balanceview/internal/ledger"
	"balanceview/internal/log"
)

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	months, err := s.deps.Ledger.ListMonths(r.Context(), userID, parseLimit(r))
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "List months failed", log.FieldUserID, userID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not load months")
		return
	}

	out := make([]summaryDTO, 0, len(months))
	for _, m := range months {
		out = append(out, toSummaryDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": out})
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	month, err := s.monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.deps.Ledger.Snapshot(r.Context(), userID, month)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Load month failed",
			log.FieldUserID, userID, log.FieldMonth, month.String(), log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not load month")
		return
	}

	writeJSON(w, http.StatusOK, toMonthDTO(snap, s.currency(r, userID)))
}

// handleSetIncome queues the write and answers before it is persisted.
func (s *Server) handleSetIncome(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	month, err := s.monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.deps.Ledger.SetIncome(r.Context(), userID, month, req.MonthlyIncome.value())
	accepted(w, ledger.KindIncome, month)
}

// handleAddBill answers 204 when the input was dropped by validation.
func (s *Server) handleAddBill(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	month, err := s.monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req billRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if wr := s.deps.Ledger.AddBill(r.Context(), userID, month, req.input()); wr.Dropped() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	accepted(w, ledger.KindAddBill, month)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	month, err := s.monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.deps.Ledger.DeleteBill(r.Context(), userID, month, chi.URLParam(r, "id"))
	accepted(w, ledger.KindDeleteBill, month)
}

// currency returns the user's display currency, falling back to the default.
func (s *Server) currency(r *http.Request, userID string) string {
	if s.deps.Profiles == nil {
		return core.DefaultCurrency
	}
	p, err := s.deps.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Load profile failed", log.FieldUserID, userID, log.FieldError, err)
		return core.DefaultCurrency
	}
	return p.Currency
}
