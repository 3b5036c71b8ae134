package control

import (
	"net/http"

	"github.com/flowruntime/flowruntime/errors"
)

// handleStartGraph answers POST /graph/start: bring every node up in
// topological order. The scheduler tracks only per-node state, so the
// graph-level idempotence the testable properties require ("two
// start_all calls without an intervening stop_all: first succeeds,
// second returns 409") is enforced here with a dedicated flag.
//
// Node tasks are rooted in s.baseCtx, not r.Context(): net/http cancels
// a request's context the moment this handler returns, which would tear
// down every node it just started within moments of the 200 response.
func (s *Server) handleStartGraph(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeError(w, errors.New(errors.AlreadyRunning, "graph is already running"))
		return
	}
	s.running = true
	s.mu.Unlock()

	if err := s.sched.StartAll(s.baseCtx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// handleStopGraph answers POST /graph/stop: stop every running node.
// Idempotent — stopping an already-stopped graph is a no-op success,
// matching the channel-close and node-stop semantics elsewhere in
// spec §7 ("never an error to stop what is already stopped").
func (s *Server) handleStopGraph(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.sched.StopAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
