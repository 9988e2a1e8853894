package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/dosetrace/internal/sim"
	"github.com/cwbudde/dosetrace/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	worker     *worker
	store      store.Store
	addr       string
	server     *http.Server
}

// NewServer creates a new HTTP server. The store and data directory may be
// nil/empty to run without persistence.
func NewServer(addr string, st store.Store, dataDir string) *Server {
	jm := NewJobManager()
	return &Server{
		jobManager: jm,
		worker:     newWorker(jm, st, dataDir),
		store:      st,
		addr:       addr,
	}
}

// Handler returns the server's complete HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleIndex handles GET / with a service descriptor
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	descriptor := map[string]interface{}{
		"service": "dosetrace",
		"endpoints": []string{
			"POST /api/v1/runs",
			"GET /api/v1/runs",
			"GET /api/v1/runs/{id}",
			"GET /api/v1/runs/{id}/report",
			"GET /api/v1/runs/{id}/events",
			"DELETE /api/v1/runs/{id}",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(descriptor)
}

// handleRuns handles /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRunsWithID handles /api/v1/runs/:id/*
func (s *Server) handleRunsWithID(w http.ResponseWriter, r *http.Request) {
	// Parse run ID from path
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}

	runID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetRunStatus(w, r, runID)
		case http.MethodDelete:
			s.handleCancelRun(w, r, runID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	// Route based on subpath
	switch parts[1] {
	case "status":
		s.handleGetRunStatus(w, r, runID)
	case "report":
		s.handleGetRunReport(w, r, runID)
	case "events":
		s.handleJobEvents(w, r, runID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateRun handles POST /api/v1/runs
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	// Absent fields keep their defaults
	config := sim.DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if err := config.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
		return
	}

	// Create job
	job := s.jobManager.CreateJob(config)

	// Start worker in background; the job outlives this request
	go s.worker.runJob(context.Background(), job.ID)

	// Return job
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

// handleListRuns handles GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobManager.ListJobs()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

// handleGetRunStatus handles GET /api/v1/runs/:id and /api/v1/runs/:id/status
func (s *Server) handleGetRunStatus(w http.ResponseWriter, r *http.Request, runID string) {
	job, exists := s.jobManager.GetJob(runID)
	if !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	// Compute elapsed time and throughput
	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	rate := float64(0)
	if job.Report != nil {
		rate = job.Report.Throughput
	} else if elapsed.Seconds() > 0 {
		rate = float64(job.ParticlesDone) / elapsed.Seconds()
	}

	// Create response
	response := map[string]interface{}{
		"id":                 job.ID,
		"state":              job.State,
		"config":             job.Config,
		"batchesDone":        job.BatchesDone,
		"batches":            job.Batches,
		"particlesDone":      job.ParticlesDone,
		"elapsed":            elapsed.Seconds(),
		"particlesPerSecond": rate,
		"startTime":          job.StartTime,
		"endTime":            job.EndTime,
		"error":              job.Error,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetRunReport handles GET /api/v1/runs/:id/report
func (s *Server) handleGetRunReport(w http.ResponseWriter, r *http.Request, runID string) {
	if _, exists := s.jobManager.GetJob(runID); !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	if s.store == nil {
		http.Error(w, "No report stored", http.StatusNotFound)
		return
	}

	report, err := s.store.LoadReport(runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "No report stored", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to load report: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// handleCancelRun handles DELETE /api/v1/runs/:id
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request, runID string) {
	if _, exists := s.jobManager.GetJob(runID); !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	if err := s.jobManager.CancelJob(runID); err != nil {
		// Only pending jobs can be cancelled
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	job, _ := s.jobManager.GetJob(runID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
