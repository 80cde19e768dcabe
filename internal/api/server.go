// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/storage"
)

// Analyzer runs the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.PipelineRequest) (*domain.PipelineResult, error)
}

// Server provides the HTTP API and health endpoints.
type Server struct {
	analyzer    Analyzer
	history     storage.AnalysisRepository
	monitor     *Monitor
	corsOrigins []string
	server      *http.Server
	log         *slog.Logger
}

// NewServer creates a new API server. history may be nil.
func NewServer(analyzer Analyzer, history storage.AnalysisRepository, monitor *Monitor, port int, corsOrigins []string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		analyzer:    analyzer,
		history:     history,
		monitor:     monitor,
		corsOrigins: corsOrigins,
		log:         slog.Default().With("component", "api"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	mux.HandleFunc("POST /api/v1/text/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/v1/text/health", s.handleServiceHealth)
	mux.HandleFunc("GET /api/v1/text/analyses", s.handleListAnalyses)
	mux.HandleFunc("GET /api/v1/text/analyses/{id}", s.handleGetAnalysis)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(s.corsOrigins, origin) || slices.Contains(s.corsOrigins, "*")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
