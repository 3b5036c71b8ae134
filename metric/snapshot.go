package metric

import (
	"context"
	"sync"
	"time"

	"github.com/flowruntime/flowruntime/channel"
	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/graph"
	"github.com/flowruntime/flowruntime/runtime"
)

// NodeReading is one node's state in a metrics snapshot. StartedAt is
// nil unless the node is currently running (spec §8's invariant that
// started_at is non-null iff status is running); Error carries the
// message that drove a node into the error state, if any.
type NodeReading struct {
	ID        string     `json:"id"`
	State     string     `json:"state"`
	StartedAt *time.Time `json:"started_at"`
	Error     string     `json:"error,omitempty"`
}

// SubscriberReading is one subscriber's counters within a ChannelReading.
type SubscriberReading struct {
	ID          string `json:"id"`
	MsgCount    uint64 `json:"msg_count"`
	MsgDelta    uint64 `json:"msg_delta"`
	ByteCount   uint64 `json:"byte_count"`
	ByteDelta   uint64 `json:"byte_delta"`
	Lag         uint64 `json:"lag"`
	LagDelta    uint64 `json:"lag_delta"`
	BufferDepth int    `json:"buffer_depth"`
}

// ChannelReading is one channel's cumulative and delta counters, plus
// per-subscriber detail, at a single snapshot instant.
type ChannelReading struct {
	Name         string              `json:"name"`
	MsgCount     uint64              `json:"msg_count"`
	MsgDelta     uint64              `json:"msg_delta"`
	ByteCount    uint64              `json:"byte_count"`
	ByteDelta    uint64              `json:"byte_delta"`
	LastSendTime time.Time           `json:"last_send_time"`
	BufferDepth  int                 `json:"buffer_depth"`
	Subscribers  []SubscriberReading `json:"subscribers"`
}

// Snapshot is the full periodic reading pushed to SSE observers (spec §4.5).
type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Nodes     []NodeReading    `json:"nodes"`
	Channels  []ChannelReading `json:"channels"`
}

type prevCounters struct {
	msgCount  uint64
	byteCount uint64
	lag       uint64
}

// Engine periodically samples the graph and scheduler's live counters,
// computes deltas against the previous sample, mirrors cumulative
// counters into the Prometheus registry, and fans the resulting
// Snapshot out to every subscribed observer channel.
type Engine struct {
	graph    *graph.Graph
	sched    *runtime.Scheduler
	registry *Registry
	interval time.Duration

	mu        sync.Mutex
	observers map[chan Snapshot]struct{}
	prevSub   map[string]prevCounters    // "channel.subscriber" -> previous counters
	prevNode  map[string]component.State // nodeID -> previous sample's state
}

// DefaultInterval is the sampling period used when none is configured
// (spec §4.5's default metrics push interval).
const DefaultInterval = 500 * time.Millisecond

// NewEngine creates a metrics engine sampling g/sched every interval.
// A zero interval uses DefaultInterval.
func NewEngine(g *graph.Graph, sched *runtime.Scheduler, registry *Registry, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		graph:     g,
		sched:     sched,
		registry:  registry,
		interval:  interval,
		observers: make(map[chan Snapshot]struct{}),
		prevSub:   make(map[string]prevCounters),
		prevNode:  make(map[string]component.State),
	}
}

// Subscribe registers a new SSE observer, returning the channel it will
// receive snapshots on and an unsubscribe function to call on disconnect.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 4)
	e.mu.Lock()
	e.observers[ch] = struct{}{}
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, exists := e.observers[ch]; exists {
			delete(e.observers, ch)
			close(ch)
		}
	}
}

// Run samples on Engine's interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sampleAndPublish()
		}
	}
}

func (e *Engine) sampleAndPublish() {
	snap := e.sample()
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.observers {
		select {
		case ch <- snap:
		default:
			// a slow SSE observer drops the sample rather than blocking sampling
		}
	}
}

func (e *Engine) sample() Snapshot {
	now := time.Now()

	var nodes []NodeReading
	for _, n := range e.graph.Nodes() {
		status := e.sched.NodeStatus(n.ID)
		reading := NodeReading{ID: n.ID, State: status.State.String()}
		if !status.StartedAt.IsZero() {
			started := status.StartedAt
			reading.StartedAt = &started
		}
		if status.Err != nil {
			reading.Error = status.Err.Error()
		}
		nodes = append(nodes, reading)

		if e.registry != nil && status.State == component.StateError && e.prevNode[n.ID] != component.StateError {
			e.registry.NodeErrorsTotal.WithLabelValues(n.ID).Inc()
		}
		e.prevNode[n.ID] = status.State
	}

	var channels []ChannelReading
	for name, snap := range e.sched.ChannelSnapshot() {
		reading := e.readChannel(name, snap)
		channels = append(channels, reading)

		if e.registry != nil {
			e.registry.MessagesTotal.WithLabelValues(name).Add(float64(reading.MsgDelta))
			e.registry.BytesTotal.WithLabelValues(name).Add(float64(reading.ByteDelta))
			for _, sub := range reading.Subscribers {
				e.registry.BufferDepth.WithLabelValues(name, sub.ID).Set(float64(sub.BufferDepth))
				e.registry.LagTotal.WithLabelValues(name, sub.ID).Add(float64(sub.LagDelta))
			}
		}
	}

	if e.registry != nil {
		running := 0
		for _, n := range nodes {
			if n.State == component.StateRunning.String() {
				running++
			}
		}
		e.registry.NodesRunning.Set(float64(running))
	}

	return Snapshot{Timestamp: now, Nodes: nodes, Channels: channels}
}

func (e *Engine) readChannel(name string, snap channel.ChannelSnapshot) ChannelReading {
	reading := ChannelReading{
		Name:         name,
		MsgCount:     snap.MsgCount,
		ByteCount:    snap.ByteCount,
		LastSendTime: snap.LastSend,
		BufferDepth:  snap.BufferDepth,
	}

	key := name + ".*"
	prev, known := e.prevSub[key]
	reading.MsgDelta = deltaOrZero(snap.MsgCount, prev.msgCount, known)
	reading.ByteDelta = deltaOrZero(snap.ByteCount, prev.byteCount, known)
	e.prevSub[key] = prevCounters{msgCount: snap.MsgCount, byteCount: snap.ByteCount}

	for subID, sub := range snap.Subscribers {
		subKey := name + "." + subID
		subPrev, subKnown := e.prevSub[subKey]
		reading.Subscribers = append(reading.Subscribers, SubscriberReading{
			ID:          subID,
			MsgCount:    sub.MsgCount,
			MsgDelta:    deltaOrZero(sub.MsgCount, subPrev.msgCount, subKnown),
			ByteCount:   sub.ByteCount,
			ByteDelta:   deltaOrZero(sub.ByteCount, subPrev.byteCount, subKnown),
			Lag:         sub.Lag,
			LagDelta:    deltaOrZero(sub.Lag, subPrev.lag, subKnown),
			BufferDepth: sub.BufferSize,
		})
		e.prevSub[subKey] = prevCounters{msgCount: sub.MsgCount, byteCount: sub.ByteCount, lag: sub.Lag}
	}

	return reading
}

func deltaOrZero(current, previous uint64, known bool) uint64 {
	if !known || current < previous {
		return 0
	}
	return current - previous
}
