package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/api/handlers"
	"github.com/Ironcock/GameReleaseFetcher/internal/api/middleware"
	"github.com/Ironcock/GameReleaseFetcher/internal/config"
	"github.com/Ironcock/GameReleaseFetcher/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	runs    handlers.RunLister
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, runs handlers.RunLister, m *metrics.Metrics, logger *logrus.Logger) *Server {
	s := &Server{
		runs:    runs,
		metrics: m,
		logger:  logger,
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.Handler(cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler(cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux, cfg)
	return middleware.Logging(mux, s.logger)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux, cfg *config.Config) {
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	statusHandler := handlers.NewStatusHandler(s.runs, cfg.Source, s.logger)
	mux.HandleFunc("/status", statusHandler.ServeHTTP)

	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	// Generated documents, e.g. /feeds/daily_games.json
	mux.Handle("/feeds/", http.StripPrefix("/feeds/", http.FileServer(http.Dir(cfg.OutputDir))))
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
