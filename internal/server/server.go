package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/flx/internal/repositories"
	"github.com/desertthunder/flx/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, panic recovery, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers serving several routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the method and path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                                          // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler, route ...Middleware) // Handle registers a handler for the specified method and path
	Handler(handler Handler, route ...Middleware)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request)                      // ServeHTTP implements http.Handler for the entire router
}

const shutdownTimeout = 10 * time.Second

// Server is the self-hosted backend: auth endpoints and the row API over sqlite.
type Server struct {
	addr   string
	router *BasicRouter
	issuer *TokenIssuer
	auth   *AuthHandler
	rest   *RESTHandler
	logger *log.Logger
}

// New wires the repositories, token issuer and handlers for db. Migrations must already be applied.
func New(cfg *shared.Config, db *sql.DB, logger *log.Logger) (*Server, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	logger = shared.ComponentLogger(logger, "server")

	issuer, err := NewTokenIssuer(
		[]byte(cfg.Server.JWTSecret), cfg.Server.JWTIssuer, cfg.Server.JWTAudience, cfg.Server.AccessTokenTTL.Duration,
	)
	if err != nil {
		return nil, err
	}

	memberships := make([]*repositories.MembershipRepository, 0, len(repositories.MembershipTables))
	for _, table := range repositories.MembershipTables {
		repo, err := repositories.NewMembershipRepository(db, table)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, repo)
	}

	s := &Server{
		addr:   cfg.Server.Addr(),
		router: NewBasicRouter(),
		issuer: issuer,
		auth: NewAuthHandler(
			repositories.NewUserRepository(db),
			repositories.NewTokenRepository(db),
			issuer,
			cfg.Server.RefreshTokenTTL.Duration,
			logger,
		),
		rest: NewRESTHandler(
			memberships,
			repositories.NewProgressRepository(db),
			repositories.NewProfileRepository(db),
			logger,
		),
		logger: logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(Recover(s.logger), Logging(s.logger))
	requireAuth := s.issuer.Middleware(s.logger)

	s.router.Handle(http.MethodGet, "/health", http.HandlerFunc(health))
	s.router.Handle(http.MethodPost, "/auth/v1/signup", http.HandlerFunc(s.auth.Signup))
	s.router.Handle(http.MethodPost, "/auth/v1/token", http.HandlerFunc(s.auth.Token))
	s.router.Handle(http.MethodPost, "/auth/v1/logout", http.HandlerFunc(s.auth.Logout), requireAuth)
	s.router.Handle(http.MethodGet, "/auth/v1/user", http.HandlerFunc(s.auth.User), requireAuth)
	s.router.Handler(s.rest, requireAuth)
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe serves until ctx is canceled and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
