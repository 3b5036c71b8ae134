package control

import (
	"net/http"

	"github.com/flowruntime/flowruntime/component"
)

// healthzNode is one node's entry in the liveness rollup.
type healthzNode struct {
	ID      string                 `json:"id"`
	Healthy bool                   `json:"healthy"`
	Detail  component.HealthStatus `json:"detail"`
}

// healthzResponse is the aggregated three-state liveness view, grounded
// on the teacher's health.Monitor.AggregateHealth rule: any unhealthy
// node makes the system unhealthy, any degraded node (with none
// unhealthy) makes it degraded, otherwise it's healthy. "Degraded" here
// means a node is reporting errors but its last check still passed.
type healthzResponse struct {
	Status string        `json:"status"`
	Nodes  []healthzNode `json:"nodes,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	nodes := s.graph.Nodes()
	resp := healthzResponse{Status: "healthy"}
	degraded := false

	for _, n := range nodes {
		h := n.Instance.Health()
		resp.Nodes = append(resp.Nodes, healthzNode{ID: n.ID, Healthy: h.Healthy, Detail: h})
		switch {
		case !h.Healthy:
			resp.Status = "unhealthy"
		case h.ErrorCount > 0:
			degraded = true
		}
	}
	if resp.Status == "healthy" && degraded {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
