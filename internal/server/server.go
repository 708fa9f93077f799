// Package server exposes the interview engine over HTTP and WebSocket.
//
// REST endpoints manage session lifecycle; the per-session WebSocket carries
// microphone audio up and session events plus synthesized speech down.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/oratiohq/oratio/internal/config"
	"github.com/oratiohq/oratio/internal/health"
	"github.com/oratiohq/oratio/internal/history"
	"github.com/oratiohq/oratio/internal/observe"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the interview engine.
type Server struct {
	cfg     config.ServerConfig
	manager *Manager
	archive history.Archive
	health  *health.Handler
	metrics *observe.Metrics
	logger  *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Server)

// WithArchive sets the interview history archive used by the history
// endpoints.
func WithArchive(a history.Archive) Option {
	return func(s *Server) { s.archive = a }
}

// WithHealth sets the health handler. Defaults to one with no readiness
// checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server around the given session manager.
func New(cfg config.ServerConfig, manager *Manager, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Routes builds the HTTP handler with all endpoints and middleware.
func (srv *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", srv.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", srv.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", srv.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/start", srv.handleStart)
	mux.HandleFunc("POST /api/sessions/{id}/answer", srv.handleAnswer)
	mux.HandleFunc("POST /api/sessions/{id}/answer/begin", srv.handleBeginAnswer)
	mux.HandleFunc("POST /api/sessions/{id}/answer/abandon", srv.handleAbandonAnswer)
	mux.HandleFunc("POST /api/sessions/{id}/end", srv.handleEnd)
	mux.HandleFunc("POST /api/sessions/{id}/retry", srv.handleRetry)
	mux.HandleFunc("POST /api/sessions/{id}/restart", srv.handleRestart)
	mux.HandleFunc("GET /api/sessions/{id}/ws", srv.handleWS)

	mux.HandleFunc("GET /api/history", srv.handleHistory)
	mux.HandleFunc("GET /api/history/{id}", srv.handleGetHistoryRecord)

	mux.Handle("GET /metrics", promhttp.Handler())
	srv.health.Register(mux)

	return observe.Middleware(srv.metrics)(mux)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// closes all live sessions.
func (srv *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              srv.cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		srv.logger.Info("server listening", "addr", srv.cfg.ListenAddr, "tls", srv.cfg.TLS != nil)
		var err error
		if srv.cfg.TLS != nil {
			err = httpServer.ListenAndServeTLS(srv.cfg.TLS.CertFile, srv.cfg.TLS.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		srv.logger.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)

		srv.manager.CloseAll()
		return err
	})

	return g.Wait()
}
