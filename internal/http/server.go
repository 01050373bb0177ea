// Package http serves the JSON API over the ledger, the legacy migration
// and the advisor.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"balanceview/internal/advisor"
	"balanceview/internal/auth"
	"balanceview/internal/core"
	"balanceview/internal/ledger"
	"balanceview/internal/log"
	"balanceview/internal/metrics"
	"balanceview/internal/migration"
)

// ProfileStore reads and writes user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (core.Profile, error)
	SaveProfile(ctx context.Context, p core.Profile) error
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Ledger    *ledger.Ledger
	Migration *migration.Service
	Accounts  *auth.PasswordAuthenticator
	Tokens    *auth.JWTManager
	Profiles  ProfileStore
	Advisor   *advisor.Advisor
	Metrics   *metrics.Metrics
	Logger    *log.Logger

	// Ready reports whether backing services are reachable; nil means always ready.
	Ready func(ctx context.Context) error

	// RateLimitPerMin caps mutating requests per client IP; <= 0 disables it.
	RateLimitPerMin int
}

type Server struct {
	http.Server
	deps         Deps
	logger       *log.Logger
	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Default(log.ComponentHTTP)
	}
	s := &Server{
		deps:   deps,
		logger: deps.Logger,
	}
	if deps.RateLimitPerMin > 0 {
		s.rateLimiter = newRateLimiter(deps.RateLimitPerMin)
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(log.Middleware(s.logger, func(r *http.Request) string { return middleware.GetReqID(r.Context()) }))
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.deps.Tokens, func(w http.ResponseWriter, r *http.Request, err error) {
				writeError(w, http.StatusUnauthorized, err.Error())
			}))

			r.Get("/months", s.handleListMonths)
			r.Route("/months/{month}", func(r chi.Router) {
				r.Get("/", s.handleGetMonth)
				r.Put("/income", s.handleSetIncome)
				r.Post("/bills", s.handleAddBill)
				r.Delete("/bills/{id}", s.handleDeleteBill)
			})

			r.Get("/migration", s.handleMigrationStatus)
			r.Post("/migration", s.handleMigrate)

			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleSaveProfile)

			r.Post("/advice", s.handleAdvice)
		})

		// EventSource cannot set headers, so the stream also takes the token
		// from the query string.
		r.With(tokenFromQuery, auth.RequireAuth(s.deps.Tokens, func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, http.StatusUnauthorized, err.Error())
		})).Get("/events", s.handleEvents)
	})

	return r
}

// Shutdown stops accepting requests, then waits for in-flight ledger writes.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}

		shutdownErr = s.Server.Shutdown(ctx)

		if s.deps.Ledger != nil {
			if err := s.deps.Ledger.Flush(ctx); err != nil {
				s.logger.WarnContext(ctx, "Pending ledger writes not flushed", log.FieldError, err)
				shutdownErr = errors.Join(shutdownErr, err)
			}
		}
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
