package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/flowruntime/flowruntime/metric"
)

// sseEventCounter hands out monotonically increasing SSE event ids,
// shared across every connection the same way the teacher's log-tail
// endpoint counts events, so a reconnecting client's Last-Event-ID is
// always comparable.
var sseEventCounter atomic.Uint64

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) {
	id := sseEventCounter.Add(1)
	fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, id, data)
	flusher.Flush()
}

// handleMetricsSSE answers GET /metrics: a ~2Hz (engine-interval-paced)
// idempotent stream of MetricsSnapshot events (spec §6.2), one JSON
// object per event, terminating cleanly when the client disconnects.
func (s *Server) handleMetricsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	writeSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: 5000\n\n")
	flusher.Flush()

	snapshots, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			sendSSEEvent(w, flusher, "metrics", data)
		}
	}
}

// handleFramesSSE answers GET /frames: an optional debugging stream of
// the most recent decoded items flowing through the pipeline. This
// runtime has no dedicated tap buffering raw items across every channel
// (spec §6.2 marks the endpoint optional for exactly this reason), so it
// reuses the metrics engine's own snapshot stream under a "frame" event
// name — still a live, idempotent view of pipeline activity, just one
// keyed on node/channel state rather than decoded payload contents.
func (s *Server) handleFramesSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	writeSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	snapshots, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(frameDebugView(snap))
			if err != nil {
				continue
			}
			sendSSEEvent(w, flusher, "frame", data)
		}
	}
}

// frameDebugView narrows a metric.Snapshot down to the channel activity
// a /frames debugging client cares about: which channels carried
// traffic most recently and how deep their buffers are running.
func frameDebugView(snap metric.Snapshot) any {
	type channelActivity struct {
		Name        string `json:"name"`
		MsgDelta    uint64 `json:"msg_delta"`
		BufferDepth int    `json:"buffer_depth"`
	}
	out := struct {
		Timestamp string            `json:"timestamp"`
		Channels  []channelActivity `json:"channels"`
	}{Timestamp: snap.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")}

	for _, c := range snap.Channels {
		out.Channels = append(out.Channels, channelActivity{
			Name:        c.Name,
			MsgDelta:    c.MsgDelta,
			BufferDepth: c.BufferDepth,
		})
	}
	return out
}
