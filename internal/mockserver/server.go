// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jeranaias/mindstack-tui/internal/logging"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is where the dev server listens.
	DefaultAddr = "127.0.0.1:8788"

	// DefaultAnonKey is the public key the dev server accepts.
	DefaultAnonKey = "dev-anon-key"

	// DefaultTokenTTL is the lifetime of issued access tokens.
	DefaultTokenTTL = time.Hour

	// DefaultChunkDelay paces streamed answer fragments.
	DefaultChunkDelay = 40 * time.Millisecond

	// MaxRequestBodySize caps request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	AnonKey  string
	TokenTTL time.Duration

	// ChunkDelay is the pause between streamed fragments. Negative disables it.
	ChunkDelay time.Duration

	// ConfirmEmail makes sign-up return no session, as when the provider
	// requires email confirmation.
	ConfirmEmail bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Server is the fake backend.
type Server struct {
	router *chi.Mux
	server *http.Server
	store  *store
	opts   Options
	logger *slog.Logger
}

// New creates a server seeded with the demo account.
func New(opts Options) *Server {
	if opts.AnonKey == "" {
		opts.AnonKey = DefaultAnonKey
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.ChunkDelay == 0 {
		opts.ChunkDelay = DefaultChunkDelay
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		router: chi.NewRouter(),
		store:  newStore(),
		opts:   opts,
		logger: opts.Logger,
	}
	s.store.seed(opts.Now())
	s.setupRoutes()
	return s
}

// Handler returns the root handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AnonKey returns the key clients must send in the apikey header.
func (s *Server) AnonKey() string {
	return s.opts.AnonKey
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.store.revokeAll()
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(limitBody(MaxRequestBodySize))

	r.Get("/health", s.handleHealth)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Use(requireAnonKey(s.opts.AnonKey))
		r.Post("/token", s.handleToken)
		r.Post("/signup", s.handleSignUp)
		r.With(s.requireUser).Post("/logout", s.handleLogout)
		r.With(s.requireUser).Get("/user", s.handleUser)
		r.With(s.requireUser).Post("/factors", s.handleEnrollFactor)
		r.With(s.requireUser).Post("/factors/{factorID}/challenge", s.handleChallenge)
		r.With(s.requireUser).Post("/factors/{factorID}/verify", s.handleVerify)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects/{projectID}/captures", s.handleListCaptures)
		r.Delete("/captures/{captureID}", s.handleDeleteCapture)
		r.Post("/chat", s.handleChat)
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev server listening", "addr", ln.Addr().String())
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("dev server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the backend's error shape.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAuthError writes the auth provider's error shape.
func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": message})
}
