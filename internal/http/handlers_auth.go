package http

import (
	"errors"
	"net/http"

	"balanceview/internal/auth"
	"balanceview/internal/log"
	"balanceview/internal/storage"
)

type tokenResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.deps.Accounts.Register(r.Context(), req.Email, sanitizeInput(req.DisplayName), req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Registration failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.issueToken(w, r, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.deps.Accounts.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Login failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.issueToken(w, r, http.StatusOK, u)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, status int, u *storage.User) {
	token, err := s.deps.Tokens.Generate(u.ID, u.Email)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Token generation failed", log.FieldUserID, u.ID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, status, tokenResponse{Token: token, UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName})
}
