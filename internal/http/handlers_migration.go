package http

import (
	"errors"
	"net/http"

	"balanceview/internal/auth"
	"balanceview/internal/log"
	"balanceview/internal/migration"
)

// handleMigrationStatus runs detection for the user's session and reports
// the resulting state.
func (s *Server) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	sess := s.deps.Migration.Session(userID)

	if _, err := sess.Detect(r.Context()); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Legacy detection failed",
			log.FieldUserID, userID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not check for legacy data")
		return
	}
	writeJSON(w, http.StatusOK, toMigrationDTO(sess.Status()))
}

// handleMigrate folds legacy data into the current month. Detection runs
// first so clients do not need a separate GET.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	logger := log.FromContext(r.Context())
	sess := s.deps.Migration.Session(userID)

	if _, err := sess.Detect(r.Context()); err != nil {
		logger.ErrorContext(r.Context(), "Legacy detection failed", log.FieldUserID, userID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not check for legacy data")
		return
	}

	res, err := sess.Migrate(r.Context())
	switch {
	case errors.Is(err, migration.ErrMigrationInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, migration.ErrInvalidTransition):
		NewJSONResponse().Status(http.StatusConflict).Body(map[string]any{
			"error": map[string]string{"message": "nothing to migrate"},
			"state": sess.State(),
		}).Write(w)
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, toMigrationDTO(sess.Status()))
		return
	}

	writeJSON(w, http.StatusOK, migrationDTO{State: sess.State(), Result: toResultDTO(res)})
}
