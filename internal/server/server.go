// Package server exposes the review surface: a small JSON API for
// inspecting the queue, approving suggestions, and triggering pipeline
// jobs by hand.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ecomstack/shelfsort/internal/service"
)

// Pipeline is the slice of the engine the review surface can trigger.
type Pipeline interface {
	SyncHierarchy(ctx context.Context) (int, error)
	ScanNewProducts(ctx context.Context, since time.Time) (int, error)
	DrainQueue(ctx context.Context, batchSize int) (int, error)
	ApplyAssignments(ctx context.Context, limit int) (int, error)
}

// Config holds the review server settings.
type Config struct {
	Addr            string
	MinReadyCount   int
	ScanWindow      time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP review surface.
type Server struct {
	store    service.Storage
	pipeline Pipeline
	logger   *slog.Logger
	cfg      Config
	http     *http.Server
}

// New creates the review server. Addr defaults to :8090, the ready
// threshold to 5 contributing products, and the manual scan window to
// 24 hours.
func New(store service.Storage, pipeline Pipeline, cfg Config, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}
	if cfg.MinReadyCount <= 0 {
		cfg.MinReadyCount = 5
	}
	if cfg.ScanWindow <= 0 {
		cfg.ScanWindow = 24 * time.Hour
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		store:    store,
		pipeline: pipeline,
		logger:   logger,
		cfg:      cfg,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/queue", s.handleQueue)
	r.Get("/suggestions", s.handleSuggestions)
	r.Post("/suggestions/{id}/approve", s.handleSuggestionReview(true))
	r.Post("/suggestions/{id}/reject", s.handleSuggestionReview(false))
	r.Post("/errors/reset", s.handleResetErrors)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/sync", s.handleJobSync)
		r.Post("/scan", s.handleJobScan)
		r.Post("/drain", s.handleJobDrain)
		r.Post("/apply", s.handleJobApply)
	})

	return r
}

// ListenAndServe runs the server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("review server listening", "addr", s.cfg.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down review server: %w", err)
	}
	return nil
}

// Handler exposes the routed handler; used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
