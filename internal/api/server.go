// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handler "github.com/newthinker/portsim/internal/api/handler/api"
	"github.com/newthinker/portsim/internal/api/middleware"
	"github.com/newthinker/portsim/internal/config"
	"github.com/newthinker/portsim/internal/metrics"
	"github.com/newthinker/portsim/internal/runner"
)

// Server represents the HTTP server for portsim
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string
}

// Dependencies holds the services the routes are served from. Archive
// and Metrics are optional.
type Dependencies struct {
	Runner   *runner.Runner
	Archive  handler.ResultLoader
	Metrics  *metrics.Registry
	Defaults config.SimulationConfig
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("api: runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}
	s.setupRoutes(cfg, deps)

	var h http.Handler = mux
	h = metrics.LoggingMiddleware(logger)(h)
	if deps.Metrics != nil {
		h = metrics.HTTPMiddleware(deps.Metrics)(h)
	}
	s.httpServer.Handler = h

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	runs := handler.NewRunsHandler(deps.Runner, deps.Archive, deps.Defaults)
	auth := middleware.APIKeyAuth(cfg.APIKey)
	s.mux.Handle("POST /api/v1/runs", auth(http.HandlerFunc(runs.Create)))
	s.mux.Handle("GET /api/v1/runs", auth(http.HandlerFunc(runs.List)))
	s.mux.Handle("GET /api/v1/runs/{id}", auth(http.HandlerFunc(runs.Get)))
	s.mux.Handle("GET /api/v1/runs/{id}/summary", auth(http.HandlerFunc(runs.Summary)))
	s.mux.Handle("GET /api/v1/runs/{id}/chart", auth(http.HandlerFunc(runs.Chart)))
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
