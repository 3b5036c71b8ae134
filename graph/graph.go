// Package graph is the in-memory DAG model a flow is built from: nodes
// backed by component instances, edges connecting one node's output
// port to another node's input port, strict type-equality checking on
// connection, and cycle rejection.
package graph

import (
	"fmt"
	"sync"

	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/errors"
)

// Node is one component instance placed in the graph.
type Node struct {
	ID        string
	TypeName  string
	Instance  component.Discoverable
	Config    map[string]any
}

// Edge connects one node's output port to another node's input port.
type Edge struct {
	ID         string
	FromNode   string
	FromPort   string
	ToNode     string
	ToPort     string
}

func portRef(node, port string) string { return node + "." + port }

// Graph is the mutable, thread-safe DAG of nodes and edges. Every
// operation takes the graph's own lock, so no single edit is observed
// half-applied by a concurrent reader.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
	}
}

// Lock acquires the graph's write lock, blocking every other Graph call
// until Unlock. The holder must not call other Graph methods meanwhile:
// they take the same lock, which is not reentrant.
func (g *Graph) Lock() { g.mu.Lock() }

// Unlock releases the lock acquired by Lock.
func (g *Graph) Unlock() { g.mu.Unlock() }

// AddNode inserts a node, failing with DuplicateId if id is already used.
func (g *Graph) AddNode(id, typeName string, instance component.Discoverable, config map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id == "" {
		return errors.New(errors.InvalidArgs, "node id must not be empty")
	}
	if _, exists := g.nodes[id]; exists {
		return errors.New(errors.DuplicateId, "node %q already exists", id)
	}

	g.nodes[id] = &Node{ID: id, TypeName: typeName, Instance: instance, Config: config}
	return nil
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; !exists {
		return errors.New(errors.NodeNotFound, "node %q does not exist", id)
	}
	delete(g.nodes, id)

	for eid, e := range g.edges {
		if e.FromNode == id || e.ToNode == id {
			delete(g.edges, eid)
		}
	}
	return nil
}

// Node returns the node registered under id.
func (g *Graph) Node(id string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, exists := g.nodes[id]
	if !exists {
		return nil, errors.New(errors.NodeNotFound, "node %q does not exist", id)
	}
	return n, nil
}

// Nodes returns every node in the graph.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns every edge in the graph.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out
}

// EdgesFrom returns every edge whose source is nodeID, used by the
// runtime to discover which channels a node's output should publish on.
func (g *Graph) EdgesFrom(nodeID string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Edge
	for _, e := range g.edges {
		if e.FromNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns every edge whose target is nodeID.
func (g *Graph) EdgesTo(nodeID string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Edge
	for _, e := range g.edges {
		if e.ToNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

func findPort(ports []component.Port, name string, dir component.Direction) (component.Port, bool) {
	for _, p := range ports {
		if p.Name == name && p.Direction == dir {
			return p, true
		}
	}
	return component.Port{}, false
}

// edgeID computes an edge's identity deterministically from its
// four-tuple (src_node:src_slot->dst_node:dst_slot), so the same
// connection always produces the same id and no id is ever generated
// or accepted from a caller.
func edgeID(fromNode, fromPort, toNode, toPort string) string {
	return fmt.Sprintf("%s:%s->%s:%s", fromNode, fromPort, toNode, toPort)
}

// AddEdge connects fromNode's output port to toNode's input port,
// enforcing strict element-type equality, rejecting a duplicate
// connection onto the same input slot, and rejecting the edge outright
// if it would introduce a cycle (spec §4.3). The edge's id is derived
// from the four-tuple, never supplied by the caller.
func (g *Graph) AddEdge(fromNode, fromPort, toNode, toPort string) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, exists := g.nodes[fromNode]
	if !exists {
		return nil, errors.New(errors.NodeNotFound, "node %q does not exist", fromNode)
	}
	dst, exists := g.nodes[toNode]
	if !exists {
		return nil, errors.New(errors.NodeNotFound, "node %q does not exist", toNode)
	}

	outPort, ok := findPort(src.Instance.OutputPorts(), fromPort, component.DirectionOutput)
	if !ok {
		return nil, errors.New(errors.UnknownSlot, "node %q has no output slot %q", fromNode, fromPort)
	}
	inPort, ok := findPort(dst.Instance.InputPorts(), toPort, component.DirectionInput)
	if !ok {
		return nil, errors.New(errors.UnknownSlot, "node %q has no input slot %q", toNode, toPort)
	}

	if outPort.ElementType != inPort.ElementType {
		return nil, errors.New(errors.TypeMismatch,
			"cannot connect %s (%s) to %s (%s): element types differ",
			portRef(fromNode, fromPort), outPort.ElementType, portRef(toNode, toPort), inPort.ElementType)
	}

	for _, e := range g.edges {
		if e.ToNode == toNode && e.ToPort == toPort {
			return nil, errors.New(errors.DuplicateEdge,
				"input slot %s is already connected", portRef(toNode, toPort))
		}
	}

	if g.wouldCreateCycle(fromNode, toNode) {
		return nil, errors.New(errors.CycleDetected,
			"connecting %s to %s would create a cycle", fromNode, toNode)
	}

	id := edgeID(fromNode, fromPort, toNode, toPort)
	if _, exists := g.edges[id]; exists {
		return nil, errors.New(errors.DuplicateEdge, "edge %q already exists", id)
	}
	e := &Edge{ID: id, FromNode: fromNode, FromPort: fromPort, ToNode: toNode, ToPort: toPort}
	g.edges[id] = e
	return e, nil
}

// RemoveEdge deletes the edge connecting the given four-tuple. Deleting
// a nonexistent edge is an error, not a no-op, matching every other
// NotFound case in this package.
func (g *Graph) RemoveEdge(fromNode, fromPort, toNode, toPort string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := edgeID(fromNode, fromPort, toNode, toPort)
	if _, exists := g.edges[id]; !exists {
		return errors.New(errors.EdgeNotFound, "edge %q does not exist", id)
	}
	delete(g.edges, id)
	return nil
}

// wouldCreateCycle reports whether adding an edge from->to would create
// a cycle, via a DFS walk from "to" looking for a path back to "from".
// Callers must hold g.mu.
func (g *Graph) wouldCreateCycle(from, to string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	var stack []string
	stack = append(stack, to)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == from {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, e := range g.edges {
			if e.FromNode == cur {
				stack = append(stack, e.ToNode)
			}
		}
	}
	return false
}

// TopologicalOrder returns node ids in dependency order (sources before
// their consumers), used by the runtime to start nodes in an order that
// guarantees a node's channels exist before anything tries to subscribe
// to them. Returns CycleDetected if the current edge set is not acyclic
// — a defensive check, since AddEdge already refuses cycle-introducing
// edges, but this independently verifies a graph built incrementally.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	adj := make(map[string][]string, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	for _, e := range g.edges {
		adj[e.FromNode] = append(adj[e.FromNode], e.ToNode)
		indegree[e.ToNode]++
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, next := range adj[cur] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, errors.New(errors.CycleDetected, "graph contains a cycle")
	}
	return order, nil
}

// Validate checks structural invariants beyond what AddNode/AddEdge
// enforce incrementally — principally that every edge still references
// existing nodes and ports, useful after a bulk graph replacement.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, e := range g.edges {
		src, exists := g.nodes[e.FromNode]
		if !exists {
			return errors.New(errors.NodeNotFound, "edge %q references missing node %q", e.ID, e.FromNode)
		}
		dst, exists := g.nodes[e.ToNode]
		if !exists {
			return errors.New(errors.NodeNotFound, "edge %q references missing node %q", e.ID, e.ToNode)
		}
		if _, ok := findPort(src.Instance.OutputPorts(), e.FromPort, component.DirectionOutput); !ok {
			return errors.New(errors.UnknownSlot, "edge %q references missing output slot %q", e.ID, e.FromPort)
		}
		if _, ok := findPort(dst.Instance.InputPorts(), e.ToPort, component.DirectionInput); !ok {
			return errors.New(errors.UnknownSlot, "edge %q references missing input slot %q", e.ID, e.ToPort)
		}
	}
	return nil
}

// String renders an edge for logging.
func (e *Edge) String() string {
	return fmt.Sprintf("%s:%s->%s:%s", e.FromNode, e.FromPort, e.ToNode, e.ToPort)
}
