// Package httpserver provides the operations HTTP server for the paper catalog:
// liveness, readiness, Prometheus metrics and the last ingestion run summary.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-catalog-service/internal/database"
	"github.com/helixir/paper-catalog-service/internal/domain"
)

// HealthChecker reports database health. *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// RunStatusSource exposes the summary of the most recent ingestion run.
type RunStatusSource interface {
	LastRun() *domain.RunSummary
}

// Server is the operations HTTP server.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	health      HealthChecker
	runs        RunStatusSource
	metrics     http.Handler
	metricsPath string
	corsOrigins []string
	logger      zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	MetricsPath     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// AllowedOrigins enables CORS for browser dashboards polling /status.
	AllowedOrigins []string
}

// NewServer creates the operations server. runs may be nil when no pipeline
// is attached; /status then always reports that no run has happened.
func NewServer(cfg Config, health HealthChecker, runs RunStatusSource, logger zerolog.Logger) *Server {
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	s := &Server{
		health:      health,
		runs:        runs,
		metrics:     promhttp.Handler(),
		metricsPath: metricsPath,
		corsOrigins: cfg.AllowedOrigins,
		logger:      logger.With().Str("component", "ops-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(withCorrelationID)
	r.Use(logRequests(s.logger))
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", correlationHeader},
			ExposedHeaders: []string{correlationHeader},
			MaxAge:         300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Handle(s.metricsPath, s.metrics)

	r.Group(func(r chi.Router) {
		r.Use(jsonResponses)
		r.Get("/healthz", s.healthHandler)
		r.Get("/readyz", s.readinessHandler)
		r.Get("/status", s.statusHandler)
	})

	return r
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("ops server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness together with the database status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, readinessResponse{
		Status:   "ready",
		Database: health.Status,
		Pool: poolResponse{
			Total:    health.TotalConns,
			Acquired: health.AcquiredConns,
			Idle:     health.IdleConns,
			Max:      health.MaxConns,
		},
	})
}

// statusHandler returns the last run summary.
func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	var last *domain.RunSummary
	if s.runs != nil {
		last = s.runs.LastRun()
	}
	if last == nil {
		writeJSON(w, http.StatusOK, statusResponse{State: "idle", Message: "no ingestion run has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(last))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; nothing useful can be done with an encode error.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
