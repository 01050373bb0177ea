package http

import (
	"errors"
	"net/http"
	"strings"

	"balanceview/internal/advisor"
	"balanceview/internal/auth"
	"balanceview/internal/core"
	"balanceview/internal/log"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	p, err := s.deps.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Load profile failed", log.FieldUserID, userID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not load profile")
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := req.profile(userID)
	if err := s.deps.Profiles.SaveProfile(r.Context(), p); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Save profile failed", log.FieldUserID, userID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not save profile")
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// handleAdvice asks the advisor about one month, the current one by default.
func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Advisor.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "advisor is not configured")
		return
	}
	userID := auth.UserID(r.Context())

	var req adviceRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	month := s.deps.Ledger.CurrentMonth()
	if m := strings.TrimSpace(req.Month); m != "" && m != CurrentMonthAlias {
		parsed, err := core.ParseMonthKey(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		month = parsed
	}

	snap, err := s.deps.Ledger.Snapshot(r.Context(), userID, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load month")
		return
	}
	profile, err := s.deps.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load profile")
		return
	}

	adv, err := s.deps.Advisor.Recommend(r.Context(), snap, profile)
	switch {
	case errors.Is(err, advisor.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "advisor is not configured")
		return
	case err != nil:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Advice failed",
			log.FieldComponent, log.ComponentAdvisor, log.FieldUserID, userID, log.FieldError, err)
		writeError(w, http.StatusBadGateway, "could not generate recommendations")
		return
	}
	writeJSON(w, http.StatusOK, adv)
}
