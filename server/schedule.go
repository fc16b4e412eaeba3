package server

import (
	"net/http"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/scheduler"
)

// handleSchedule reads or updates the cron schedule. Updates are validated,
// persisted, and applied to the running cron in one step.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status, err := s.scheduler.Status(r.Context())
		if err != nil {
			s.log.Errorw("Failed to read schedule", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to read schedule")
			return
		}
		writeJSON(w, http.StatusOK, status)

	case http.MethodPut:
		var cfg scheduler.ScheduleConfig
		if err := readJSON(w, r, &cfg); err != nil {
			return
		}

		if err := s.scheduler.UpdateConfig(r.Context(), &cfg); err != nil {
			if errors.Is(err, errors.ErrInvalidRequest) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.log.Errorw("Failed to update schedule", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to update schedule")
			return
		}

		status, err := s.scheduler.Status(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read schedule")
			return
		}
		writeJSON(w, http.StatusOK, status)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
