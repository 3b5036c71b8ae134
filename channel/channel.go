// Package channel implements the typed one-to-many publish/subscribe
// primitive nodes communicate over: bounded per-subscriber buffers,
// drop-oldest backpressure, and cumulative counters for the metrics
// engine to sample.
package channel

import (
	"sync"
	"time"

	"github.com/flowruntime/flowruntime/errors"
)

// DefaultCapacity is the per-subscriber buffer capacity used when a
// channel is created without an explicit one (spec §3).
const DefaultCapacity = 64

// Sizer lets an item report its own byte size for the byte_count counters.
// Types that don't implement it contribute 0 bytes, per spec §4.1.
type Sizer interface {
	Size() int
}

func sizeOf(item any) int {
	if s, ok := item.(Sizer); ok {
		return s.Size()
	}
	return 0
}

// Subscriber is a consumer handle returned by Subscribe. Receive is the
// sole suspension point in a node's input loop.
type Subscriber struct {
	id string
	ch *Channel

	mu       sync.Mutex
	cond     *sync.Cond
	buf      []any
	head     int
	tail     int
	size     int
	cap      int
	closed   bool
	msgCount uint64
	byteCnt  uint64
	lag      uint64
	lastSend time.Time
}

// ID returns the id the subscriber was attached under.
func (s *Subscriber) ID() string { return s.id }

// Snapshot is an immutable read of a subscriber's cumulative counters,
// taken under the subscriber's own lock, safe to hand to the metrics
// engine without risk of tearing.
type Snapshot struct {
	MsgCount   uint64
	ByteCount  uint64
	Lag        uint64
	BufferSize int
	LastSend   time.Time
}

// Snapshot returns the subscriber's current cumulative counters and depth.
func (s *Subscriber) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		MsgCount:   s.msgCount,
		ByteCount:  s.byteCnt,
		Lag:        s.lag,
		BufferSize: s.size,
		LastSend:   s.lastSend,
	}
}

// push enqueues item into the subscriber's buffer, dropping the oldest
// element and incrementing lag if the buffer is full (spec §4.1).
func (s *Subscriber) push(item any, byteSize int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.size == s.cap {
		s.tail = (s.tail + 1) % s.cap
		s.size--
		s.lag++
	}

	s.buf[s.head] = item
	s.head = (s.head + 1) % s.cap
	s.size++

	s.msgCount++
	s.byteCnt += uint64(byteSize)
	s.lastSend = at

	s.cond.Signal()
}

// Receive blocks until an item is available or the channel closes, in
// which case it returns (nil, false) — the sentinel a node's input loop
// checks to end its receive-and-step cycle.
func (s *Subscriber) Receive() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.size == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.size == 0 && s.closed {
		return nil, false
	}

	item := s.buf[s.tail]
	s.buf[s.tail] = nil
	s.tail = (s.tail + 1) % s.cap
	s.size--

	return item, true
}

func (s *Subscriber) drainAndClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for i := range s.buf {
		s.buf[i] = nil
	}
	s.head, s.tail, s.size = 0, 0, 0
	s.cond.Broadcast()
}

func (s *Subscriber) closeForChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Channel is the typed publish/subscribe buffer attached to one output
// slot of one node (spec §3, §4.1).
type Channel struct {
	name        string
	elementType string
	capacity    int

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool

	msgCount uint64
	byteCnt  uint64
	lastSend time.Time
}

// New creates a channel for the given producer output slot name (of the
// form "<node_id>.<output_slot>") and declared element type.
func New(name, elementType string, capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		name:        name,
		elementType: elementType,
		capacity:    capacity,
		subscribers: make(map[string]*Subscriber),
	}
}

// Name returns the channel's name.
func (c *Channel) Name() string { return c.name }

// ElementType returns the declared element type of items on this channel.
func (c *Channel) ElementType() string { return c.elementType }

// Subscribe attaches a new subscriber under subscriberID, failing with
// AlreadySubscribed if that id is already attached (spec §4.1).
func (c *Channel) Subscribe(subscriberID string) (*Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subscribers[subscriberID]; exists {
		return nil, errors.New(errors.AlreadySubscribed,
			"subscriber %q already attached to channel %q", subscriberID, c.name)
	}

	s := &Subscriber{
		id:  subscriberID,
		ch:  c,
		buf: make([]any, c.capacity),
		cap: c.capacity,
	}
	s.cond = sync.NewCond(&s.mu)

	if c.closed {
		s.closed = true
	}

	c.subscribers[subscriberID] = s
	return s, nil
}

// Unsubscribe detaches subscriberID, draining and discarding its buffer.
func (c *Channel) Unsubscribe(subscriberID string) {
	c.mu.Lock()
	s, exists := c.subscribers[subscriberID]
	if exists {
		delete(c.subscribers, subscriberID)
	}
	c.mu.Unlock()

	if exists {
		s.drainAndClose()
	}
}

// Publish pushes item to every subscriber's buffer, dropping the oldest
// element per slow subscriber rather than blocking (spec §4.1, §5).
// Publishing with zero subscribers is a no-op for the producer other
// than bookkeeping; publishing to a closed channel does nothing at all.
func (c *Channel) Publish(item any) {
	now := time.Now()
	byteSize := sizeOf(item)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.msgCount++
	c.byteCnt += uint64(byteSize)
	c.lastSend = now
	subs := make([]*Subscriber, 0, len(c.subscribers))
	for _, s := range c.subscribers {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.push(item, byteSize, now)
	}
}

// Close wakes all receivers; subsequent Publish calls become no-ops.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := make([]*Subscriber, 0, len(c.subscribers))
	for _, s := range c.subscribers {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.closeForChannel()
	}
}

// ChannelSnapshot is a point-in-time read of channel-level cumulative
// counters plus every subscriber's own snapshot, for the metrics engine.
type ChannelSnapshot struct {
	MsgCount     uint64
	ByteCount    uint64
	LastSend     time.Time
	BufferDepth  int
	Subscribers  map[string]Snapshot
}

// Snapshot reads the channel's cumulative counters and every subscriber's
// state under the channel's own lock plus each subscriber's lock — never
// blocking a node task beyond a brief counter read (spec §5).
func (c *Channel) Snapshot() ChannelSnapshot {
	c.mu.RLock()
	subs := make(map[string]*Subscriber, len(c.subscribers))
	for id, s := range c.subscribers {
		subs[id] = s
	}
	snap := ChannelSnapshot{
		MsgCount:    c.msgCount,
		ByteCount:   c.byteCnt,
		LastSend:    c.lastSend,
		Subscribers: make(map[string]Snapshot, len(subs)),
	}
	c.mu.RUnlock()

	maxDepth := 0
	for id, s := range subs {
		ss := s.Snapshot()
		snap.Subscribers[id] = ss
		if ss.BufferSize > maxDepth {
			maxDepth = ss.BufferSize
		}
	}
	snap.BufferDepth = maxDepth
	return snap
}

// SubscriberCount returns the number of currently attached subscribers.
func (c *Channel) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}
