package control

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowruntime/flowruntime/components"
	"github.com/flowruntime/flowruntime/errors"
)

// upgrader mirrors the teacher's websocket output component's upgrader:
// generous buffer sizes for JPEG frames, permissive origin checking
// since this control surface has no browser-origin allowlist concept.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	videoWriteTimeout = 5 * time.Second
	videoPingInterval = 30 * time.Second
	videoPongWait     = 60 * time.Second
)

// handleVideoWS answers GET /video/ws/{node_id}: one binary message per
// encoded JPEG frame pulled from the named node's FrameSink, for as long
// as the client stays connected. Grounded on the teacher's
// output/websocket ping/pong keepalive and single-writer-goroutine
// pattern — one goroutine owns the connection's writes, since
// gorilla/websocket connections are not safe for concurrent writers.
func (s *Server) handleVideoWS(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("node_id")
	node, err := s.graph.Node(nodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	sink, ok := node.Instance.(components.FrameSink)
	if !ok {
		writeError(w, errors.New(errors.InvalidArgs, "node %q does not produce video frames", nodeID))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("video websocket upgrade failed", "node", nodeID, "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(videoPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(videoPongWait))
		return nil
	})

	// drain and discard client-initiated frames/control messages; this
	// endpoint is send-only, but a reader goroutine is still required to
	// process pong frames and detect client disconnects.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(videoPingInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(videoWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case frame, ok := <-sink.Frames():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(videoWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}
