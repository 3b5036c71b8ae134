// Package runtime is the cooperative scheduler: one goroutine per graph
// node, subscribing to every connected input channel and stepping the
// node's component whenever any one of them has a pending item, with a
// per-node lifecycle state machine the control surface and metrics
// engine both observe.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowruntime/flowruntime/channel"
	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/errors"
	"github.com/flowruntime/flowruntime/graph"
)

// nodeTask is the runtime's bookkeeping for one running node: its
// lifecycle state, the channel subscriptions feeding its input ports,
// and the cancellation handle stopping it cleanly.
type nodeTask struct {
	id   string
	node *graph.Node

	mu    sync.RWMutex
	state component.State
	err   error

	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

func (t *nodeTask) setState(s component.State, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	t.err = err
}

func (t *nodeTask) snapshot() (component.State, error, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state, t.err, t.started
}

// StopTimeout bounds how long Stop waits for a node's task goroutine to
// exit before abandoning it, a safeguard against a misbehaving Step that
// never returns.
const StopTimeout = 5 * time.Second

// channelTable is the output-slot-keyed channel table owned by the
// Scheduler itself.
type channelTable struct {
	mu       sync.RWMutex
	byOutput map[string]*channel.Channel // "nodeID.portName" -> Channel
}

func newChannelTable() *channelTable {
	return &channelTable{byOutput: make(map[string]*channel.Channel)}
}

func (c *channelTable) get(nodeID, port string, elementType string) *channel.Channel {
	key := nodeID + "." + port
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, exists := c.byOutput[key]
	if !exists {
		ch = channel.New(key, elementType, channel.DefaultCapacity)
		c.byOutput[key] = ch
	}
	return ch
}

func (c *channelTable) lookup(nodeID, port string) (*channel.Channel, bool) {
	key := nodeID + "." + port
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, exists := c.byOutput[key]
	return ch, exists
}

func (c *channelTable) remove(nodeID, port string) {
	key := nodeID + "." + port
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, exists := c.byOutput[key]; exists {
		ch.Close()
		delete(c.byOutput, key)
	}
}

func (c *channelTable) snapshotAll() map[string]*channel.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*channel.Channel, len(c.byOutput))
	for k, v := range c.byOutput {
		out[k] = v
	}
	return out
}

// Scheduler owns the live task set running against a Graph: one goroutine
// per node, the channels connecting them, and the lifecycle state each
// node is in (spec §4.4).
type Scheduler struct {
	graph    *graph.Graph
	channels *channelTable
	logger   *slog.Logger

	mu    sync.RWMutex
	tasks map[string]*nodeTask
}

// New creates a scheduler bound to g. The scheduler does not own g's
// lifetime — callers may keep editing the graph between StartAll calls.
func New(g *graph.Graph, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		graph:    g,
		channels: newChannelTable(),
		logger:   logger,
		tasks:    make(map[string]*nodeTask),
	}
}

// emitter binds a node's Emit calls to this scheduler's channel table.
type emitter struct {
	sched  *Scheduler
	nodeID string
}

func (e emitter) Emit(slot string, item any) error {
	ch, exists := e.sched.channels.lookup(e.nodeID, slot)
	if !exists {
		return errors.New(errors.UnknownSlot, "node %q has no output channel for slot %q", e.nodeID, slot)
	}
	ch.Publish(item)
	return nil
}

// Emitter returns the Emitter a component factory should bind a new
// node's output publishing through, before the node is added to the
// graph and started.
func (s *Scheduler) Emitter(nodeID string) component.Emitter {
	return emitter{sched: s, nodeID: nodeID}
}

// NodeStatus is a node task's lifecycle snapshot: its current state, the
// error that drove it into StateError (nil otherwise), and when it was
// started — zero unless the node is running (spec §8's invariant that
// started_at is non-null iff status is running).
type NodeStatus struct {
	State     component.State
	Err       error
	StartedAt time.Time
}

// NodeState reports a running (or previously run) node's lifecycle state.
func (s *Scheduler) NodeState(nodeID string) (component.State, error) {
	status := s.NodeStatus(nodeID)
	return status.State, status.Err
}

// NodeStatus reports a node task's full lifecycle snapshot, including
// when it started, for surfaces that need more than the bare state.
func (s *Scheduler) NodeStatus(nodeID string) NodeStatus {
	s.mu.RLock()
	task, exists := s.tasks[nodeID]
	s.mu.RUnlock()
	if !exists {
		return NodeStatus{State: component.StateCreated}
	}
	state, err, started := task.snapshot()
	if state != component.StateRunning {
		started = time.Time{}
	}
	return NodeStatus{State: state, Err: err, StartedAt: started}
}

// ChannelSnapshot returns every live output channel's current snapshot,
// keyed by "nodeID.portName", for the metrics engine to sample.
func (s *Scheduler) ChannelSnapshot() map[string]channel.ChannelSnapshot {
	all := s.channels.snapshotAll()
	out := make(map[string]channel.ChannelSnapshot, len(all))
	for k, ch := range all {
		out[k] = ch.Snapshot()
	}
	return out
}

// StartNode brings up one node's task goroutine: it subscribes to every
// channel feeding its input ports (creating a channel for each of its
// output ports up front), transitions through starting -> running, and
// begins its any-input stepping loop.
func (s *Scheduler) StartNode(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	if existing, exists := s.tasks[nodeID]; exists {
		if state, _, _ := existing.snapshot(); state == component.StateRunning || state == component.StateStarting {
			s.mu.Unlock()
			return errors.New(errors.AlreadyRunning, "node %q is already running", nodeID)
		}
	}
	s.mu.Unlock()

	node, err := s.graph.Node(nodeID)
	if err != nil {
		return err
	}

	for _, p := range node.Instance.OutputPorts() {
		s.channels.get(nodeID, p.Name, p.ElementType)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := &nodeTask{id: nodeID, node: node, cancel: cancel, done: make(chan struct{}), started: time.Now()}
	task.setState(component.StateStarting, nil)

	s.mu.Lock()
	s.tasks[nodeID] = task
	s.mu.Unlock()

	if lc, ok := component.AsLifecycleComponent(node.Instance); ok {
		if err := lc.Start(taskCtx); err != nil {
			task.setState(component.StateError, err)
			cancel()
			return errors.Wrap(err, "Scheduler", "StartNode", "component start")
		}
	}

	task.setState(component.StateRunning, nil)
	go s.run(taskCtx, task)
	return nil
}

// run is the per-node goroutine body: it fans in every subscribed input
// channel via a select loop, stepping the component on whichever input
// becomes ready first (spec §4.4's any-input policy), or drives the
// component's own Run loop if it declares no input ports.
func (s *Scheduler) run(ctx context.Context, task *nodeTask) {
	defer close(task.done)

	node := task.node
	inputs := node.Instance.InputPorts()

	if runnable, ok := component.AsRunnable(node.Instance); ok && len(inputs) == 0 {
		if err := runnable.Run(ctx); err != nil && ctx.Err() == nil {
			task.setState(component.StateError, err)
			s.logger.Error("node run loop failed", "node", task.id, "error", err)
		} else {
			<-ctx.Done()
			task.setState(component.StateStopped, nil)
		}
		return
	}

	stepper, hasStep := component.AsStepper(node.Instance)
	if !hasStep || len(inputs) == 0 {
		<-ctx.Done()
		task.setState(component.StateStopped, nil)
		return
	}

	type arrival struct {
		slot string
		item any
		ok   bool
	}
	arrivals := make(chan arrival, len(inputs))

	for _, in := range inputs {
		edges := s.graph.EdgesTo(task.id)
		for _, e := range edges {
			if e.ToPort != in.Name {
				continue
			}
			srcCh := s.channels.get(e.FromNode, e.FromPort, in.ElementType)
			sub, err := srcCh.Subscribe(task.id + "." + in.Name)
			if err != nil {
				s.logger.Error("subscribe failed", "node", task.id, "slot", in.Name, "error", err)
				continue
			}

			go func(slot string, sub *channel.Subscriber) {
				for {
					item, ok := sub.Receive()
					select {
					case arrivals <- arrival{slot: slot, item: item, ok: ok}:
					case <-ctx.Done():
						return
					}
					if !ok {
						return
					}
				}
			}(in.Name, sub)
		}
	}

	for {
		select {
		case <-ctx.Done():
			task.setState(component.StateStopped, nil)
			return
		case a := <-arrivals:
			if !a.ok {
				continue
			}
			if err := stepper.Step(ctx, a.slot, a.item); err != nil {
				task.setState(component.StateError, err)
				s.logger.Error("node step failed", "node", task.id, "slot", a.slot, "error", err)
				if errors.IsFatal(err) {
					return
				}
				task.setState(component.StateRunning, nil)
			}
		}
	}
}

// StopNode cancels a running node's task and waits up to StopTimeout for
// its goroutine to exit, then unsubscribes it from every input channel
// and closes the channels backing its own output ports.
func (s *Scheduler) StopNode(nodeID string) error {
	s.mu.Lock()
	task, exists := s.tasks[nodeID]
	s.mu.Unlock()
	if !exists {
		return errors.New(errors.NodeNotFound, "node %q is not running", nodeID)
	}

	state, _, _ := task.snapshot()
	if state != component.StateRunning && state != component.StateStarting {
		return nil
	}

	task.cancel()

	if lc, ok := component.AsLifecycleComponent(task.node.Instance); ok {
		_ = lc.Stop(StopTimeout)
	}

	select {
	case <-task.done:
	case <-time.After(StopTimeout):
		s.logger.Warn("node task did not exit within stop timeout", "node", nodeID)
	}

	for _, in := range task.node.Instance.InputPorts() {
		edges := s.graph.EdgesTo(nodeID)
		for _, e := range edges {
			if e.ToPort != in.Name {
				continue
			}
			if ch, exists := s.channels.lookup(e.FromNode, e.FromPort); exists {
				ch.Unsubscribe(nodeID + "." + in.Name)
			}
		}
	}
	for _, p := range task.node.Instance.OutputPorts() {
		s.channels.remove(nodeID, p.Name)
	}

	task.setState(component.StateStopped, nil)
	return nil
}

// StartAll starts every node in the graph in topological order, so a
// producer's channels exist before its consumers try to subscribe, and
// stops whatever it already started if any node fails to come up.
func (s *Scheduler) StartAll(ctx context.Context) error {
	order, err := s.graph.TopologicalOrder()
	if err != nil {
		return err
	}

	var started []string
	for _, id := range order {
		if err := s.StartNode(ctx, id); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				_ = s.StopNode(started[i])
			}
			return fmt.Errorf("starting node %q: %w", id, err)
		}
		started = append(started, id)
	}
	return nil
}

// StopAll stops every currently running node, in no particular order;
// each StopNode closes the channels backing that node's output ports.
func (s *Scheduler) StopAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.StopNode(id); err != nil {
			s.logger.Warn("stop node failed", "node", id, "error", err)
		}
	}
}
