package server

import (
	"net/http"
	"strconv"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/queue"
)

const defaultHistoryLimit = 20

// runRequest is the optional body of POST /api/pipeline/run
type runRequest struct {
	DateRangeStart string `json:"date_range_start"`
	DateRangeEnd   string `json:"date_range_end"`
}

// handleRun enqueues a pipeline job. A busy queue answers 409 with the
// occupancy counts baked into the error message.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req runRequest
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &req); err != nil {
			return
		}
	}

	job, err := s.queue.Enqueue(r.Context(), queue.Payload{
		TriggeredBy:    queue.TriggeredByAPI,
		DateRangeStart: req.DateRangeStart,
		DateRangeEnd:   req.DateRangeEnd,
	})
	if err != nil {
		if errors.IsAlreadyRunning(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Errorw("Failed to enqueue pipeline job", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to enqueue pipeline job")
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// handleReset clears every non-terminal job
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := s.queue.ClearQueue(r.Context())
	if err != nil {
		s.log.Errorw("Failed to clear queue", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear queue")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListJobs returns jobs in a given state (default waiting)
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	state := queue.State(r.URL.Query().Get("state"))
	if state == "" {
		state = queue.StateWaiting
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	jobs, err := s.queue.Store().ListJobsByState(r.Context(), state, limit)
	if err != nil {
		s.log.Errorw("Failed to list jobs", "state", state, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*queue.Job{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// handleJobSubtree routes /api/pipeline/jobs/{id} and /api/pipeline/jobs/{id}/stream
func (s *Server) handleJobSubtree(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/pipeline/jobs/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleGetJob(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "stream":
		s.handleStream(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := s.queue.GetJob(r.Context(), id)
	if err != nil {
		if errors.IsJobNotFound(err) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.log.Errorw("Failed to get job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handleResults returns the latest completed run plus bounded history
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	response := map[string]interface{}{}

	latest, err := s.queue.LatestResult(r.Context())
	switch {
	case errors.IsJobNotFound(err):
		response["latest"] = nil
	case err != nil:
		s.log.Errorw("Failed to get latest result", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get results")
		return
	default:
		response["latest"] = latest
	}

	history, err := s.queue.RecentRuns(r.Context(), defaultHistoryLimit)
	if err != nil {
		s.log.Errorw("Failed to get run history", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get results")
		return
	}
	if history == nil {
		history = []*queue.Job{}
	}
	response["history"] = history

	writeJSON(w, http.StatusOK, response)
}
