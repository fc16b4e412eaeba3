package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mrudoy/studio-analytics-sub004/queue"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local-only service; the UI is served from the same host
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and pushes publisher events for one
// job until it reaches a terminal state or the observer disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, jobID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("Websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	// Reads are discarded; their only purpose is surfacing disconnects to
	// the context so the publisher stops polling.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	err = s.publisher.Stream(ctx, jobID, func(event queue.Event) error {
		return conn.WriteJSON(event)
	})
	if err != nil {
		s.log.Warnw("Status stream ended with error", "job_id", jobID, "error", err)
	}
}
