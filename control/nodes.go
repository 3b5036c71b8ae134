package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/errors"
	"github.com/flowruntime/flowruntime/graph"
)

// nodeView is the JSON shape returned for a single node: its identity,
// declared config, ports, and the scheduler's current lifecycle state
// for it (spec §6.1's node status field, spec §3's started_at/last
// error fields). StartedAt is nil unless the node is currently running
// (spec §8's invariant that started_at is non-null iff status is
// running).
type nodeView struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Config    map[string]any         `json:"config,omitempty"`
	Inputs    []component.Port       `json:"inputs"`
	Outputs   []component.Port       `json:"outputs"`
	Status    string                 `json:"status"`
	StartedAt *time.Time             `json:"started_at"`
	Error     string                 `json:"error,omitempty"`
	Health    component.HealthStatus `json:"health"`
}

func (s *Server) nodeViewOf(n *graph.Node) nodeView {
	status := s.sched.NodeStatus(n.ID)
	view := nodeView{
		ID:      n.ID,
		Type:    n.TypeName,
		Config:  n.Config,
		Inputs:  n.Instance.InputPorts(),
		Outputs: n.Instance.OutputPorts(),
		Status:  status.State.String(),
		Health:  n.Instance.Health(),
	}
	if !status.StartedAt.IsZero() {
		started := status.StartedAt
		view.StartedAt = &started
	}
	if status.Err != nil {
		view.Error = status.Err.Error()
	}
	return view
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	var out []nodeView
	for _, n := range s.graph.Nodes() {
		out = append(out, s.nodeViewOf(n))
	}
	writeJSON(w, http.StatusOK, out)
}

type createNodeRequest struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Init json.RawMessage `json:"init"`
}

// handleCreateNode answers POST /graph/nodes: instantiate a component of
// the requested type via the registry, bind its Emitter to the
// scheduler, and add it to the graph. Validate-then-apply (spec §7): a
// bad type or config fails before anything is added to the graph.
func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Type == "" {
		writeError(w, errors.New(errors.InvalidArgs, "type is required"))
		return
	}
	id := req.ID
	if id == "" {
		id = newNodeID(req.Type)
	}

	var cfg map[string]any
	if len(req.Init) > 0 {
		if err := json.Unmarshal(req.Init, &cfg); err != nil {
			writeError(w, errors.New(errors.InvalidArgs, "invalid init: %v", err))
			return
		}
	}

	inst, err := s.registry.Create(req.Type, req.Init, component.Dependencies{Logger: s.logger}, s.sched.Emitter(id))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.checkResourceConflict(inst); err != nil {
		writeError(w, err)
		return
	}

	if err := s.graph.AddNode(id, req.Type, inst, cfg); err != nil {
		writeError(w, err)
		return
	}

	n, _ := s.graph.Node(id)
	writeJSON(w, http.StatusCreated, s.nodeViewOf(n))
}

// checkResourceConflict rejects a new instance that claims an exclusive
// resource (component.ResourceOwner) already held by a node currently in
// the graph, grounded on the registry's exclusive-port resource tracking
// but scoped to one key per instance rather than per port.
func (s *Server) checkResourceConflict(inst component.Discoverable) error {
	owner, ok := inst.(component.ResourceOwner)
	if !ok {
		return nil
	}
	key, exclusive := owner.ResourceKey()
	if !exclusive {
		return nil
	}
	for _, n := range s.graph.Nodes() {
		existing, ok := n.Instance.(component.ResourceOwner)
		if !ok {
			continue
		}
		existingKey, existingExclusive := existing.ResourceKey()
		if existingExclusive && existingKey == key {
			return errors.New(errors.InvalidArgs, "resource conflict: %q already claimed by node %q", key, n.ID)
		}
	}
	return nil
}

// handleDeleteNode answers DELETE /graph/nodes/{id}: stop the node if it
// is running, then remove it and every edge touching it from the graph.
func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_ = s.sched.StopNode(id) // best-effort; NodeNotFound just means it never ran

	if err := s.graph.RemoveNode(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
