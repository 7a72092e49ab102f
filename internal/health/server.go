// Package health provides a lightweight HTTP server for monitoring
// long-running pipeline executions.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/metrics"
)

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
}

// StatusResponse describes the progress of the current run.
type StatusResponse struct {
	Service  string `json:"service"`
	Stage    string `json:"stage"`
	Done     bool   `json:"done"`
	Uptime   string `json:"uptime"`
	Started  string `json:"started"`
	Finished string `json:"finished,omitempty"`
}

// Server serves liveness, run status and Prometheus metrics for one
// pipeline execution.
type Server struct {
	serviceName string
	version     string
	commit      string
	address     string
	server      *http.Server
	logger      *logrus.Logger
	started     time.Time

	mu       sync.RWMutex
	stage    string
	done     bool
	finished time.Time
}

// Config holds the configuration for the monitoring server.
type Config struct {
	ServiceName string
	Version     string
	Commit      string
	Address     string
	Logger      *logrus.Logger
}

// NewServer creates a new monitoring server.
func NewServer(cfg Config) *Server {
	address := cfg.Address
	if address == "" {
		address = "localhost:9090"
	}
	return &Server{
		serviceName: cfg.ServiceName,
		version:     cfg.Version,
		commit:      cfg.Commit,
		address:     address,
		logger:      cfg.Logger,
		started:     time.Now(),
		stage:       "starting",
	}
}

// SetStage records the pipeline stage currently executing.
func (s *Server) SetStage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
}

// SetDone marks the run as complete.
func (s *Server) SetDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.stage = "complete"
	s.finished = time.Now()
}

// Start starts the monitoring server in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", metrics.Handler())

	s.server = &http.Server{
		Addr:         s.address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"address": s.address,
				"service": s.serviceName,
			}).Info("Monitoring server starting")
		}

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.WithError(err).Error("Monitoring server error")
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully shuts down the monitoring server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}

	if s.logger != nil {
		s.logger.Info("Monitoring server shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth handles the /health endpoint - basic liveness plus build info.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Service:   s.serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
		Commit:    s.commit,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleLive handles the /live endpoint - kubernetes liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Service: s.serviceName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleStatus handles the /status endpoint - run progress for operators
// watching a long execution.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	response := StatusResponse{
		Service: s.serviceName,
		Stage:   s.stage,
		Done:    s.done,
		Uptime:  time.Since(s.started).String(),
		Started: s.started.UTC().Format(time.RFC3339),
	}
	if !s.finished.IsZero() {
		response.Finished = s.finished.UTC().Format(time.RFC3339)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
