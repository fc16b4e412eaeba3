// Package server exposes the pipeline orchestrator over HTTP: trigger and
// reset endpoints, job reads, a websocket status stream, and schedule
// management.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
	"github.com/mrudoy/studio-analytics-sub004/queue"
	"github.com/mrudoy/studio-analytics-sub004/scheduler"
)

// Server is the HTTP surface of the orchestrator
type Server struct {
	queue     *queue.Queue
	publisher *queue.Publisher
	scheduler *scheduler.Scheduler

	httpServer *http.Server
	log        *zap.SugaredLogger
}

// New creates a server wired to the queue, publisher, and scheduler
func New(addr string, q *queue.Queue, publisher *queue.Publisher, sched *scheduler.Scheduler) *Server {
	s := &Server{
		queue:     q,
		publisher: publisher,
		scheduler: sched,
		log:       logger.Named("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/pipeline/run", s.handleRun)
	mux.HandleFunc("/api/pipeline/reset", s.handleReset)
	mux.HandleFunc("/api/pipeline/jobs", s.handleListJobs)
	mux.HandleFunc("/api/pipeline/jobs/", s.handleJobSubtree)
	mux.HandleFunc("/api/pipeline/results", s.handleResults)
	mux.HandleFunc("/api/pipeline/schedule", s.handleSchedule)
	mux.HandleFunc("/api/pipeline/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens and serves until Shutdown or a fatal error
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.httpServer.Addr)
	}

	s.log.Infow("HTTP server listening", "addr", listener.Addr().String())
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "HTTP server failed")
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports queue occupancy and the installed schedule
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	counts, err := s.queue.Counts(r.Context())
	if err != nil {
		s.log.Errorw("Failed to read queue counts", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read queue status")
		return
	}

	schedStatus, err := s.scheduler.Status(r.Context())
	if err != nil {
		s.log.Errorw("Failed to read schedule status", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read schedule status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue":    counts,
		"schedule": schedStatus,
	})
}
