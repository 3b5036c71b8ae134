package control

import (
	"net/http"

	"github.com/flowruntime/flowruntime/errors"
	"github.com/flowruntime/flowruntime/graph"
)

// edgeView is the wire shape for an edge: the four-tuple exactly as
// spec.md §6.1 documents it, with no id field — a client identifies an
// edge by its endpoints, never by an opaque handle the server hands
// back.
type edgeView struct {
	SourceNode string `json:"source_node"`
	SourceSlot string `json:"source_slot"`
	TargetNode string `json:"target_node"`
	TargetSlot string `json:"target_slot"`
}

func edgeViewOf(e *graph.Edge) edgeView {
	return edgeView{SourceNode: e.FromNode, SourceSlot: e.FromPort, TargetNode: e.ToNode, TargetSlot: e.ToPort}
}

func (s *Server) handleListEdges(w http.ResponseWriter, r *http.Request) {
	var out []edgeView
	for _, e := range s.graph.Edges() {
		out = append(out, edgeViewOf(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// edgeTuple is the request body shared by create and delete: the same
// four-tuple both ways, since the tuple is the edge's identity.
type edgeTuple struct {
	SourceNode string `json:"source_node"`
	SourceSlot string `json:"source_slot"`
	TargetNode string `json:"target_node"`
	TargetSlot string `json:"target_slot"`
}

func (t edgeTuple) validate() error {
	if t.SourceNode == "" || t.SourceSlot == "" || t.TargetNode == "" || t.TargetSlot == "" {
		return errors.New(errors.InvalidArgs, "source_node, source_slot, target_node, and target_slot are required")
	}
	return nil
}

// handleCreateEdge answers POST /graph/edges: connect one node's output
// port to another's input port. The graph itself enforces port
// existence, strict element-type equality, duplicate-input rejection,
// and cycle rejection (spec §4.3) — this handler only validates presence
// of the required fields and translates the graph's KindError. The
// edge's id is derived from the four-tuple by the graph itself; no id
// is accepted from or returned to the client.
func (s *Server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	var req edgeTuple
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	e, err := s.graph.AddEdge(req.SourceNode, req.SourceSlot, req.TargetNode, req.TargetSlot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edgeViewOf(e))
}

// handleDeleteEdge answers DELETE /graph/edges: the body carries the
// same four-tuple a create used, since an edge has no other identity a
// client could have captured.
func (s *Server) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	var req edgeTuple
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.graph.RemoveEdge(req.SourceNode, req.SourceSlot, req.TargetNode, req.TargetSlot); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
