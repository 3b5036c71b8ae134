package runtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/errors"
	"github.com/flowruntime/flowruntime/graph"
	"github.com/flowruntime/flowruntime/runtime"
)

// genSource emits a fixed sequence of ints on its "out" port when Run starts.
type genSource struct {
	emit   component.Emitter
	values []int
}

func (g *genSource) Meta() component.Metadata { return component.Metadata{Name: "gen", Type: "source"} }
func (g *genSource) InputPorts() []component.Port { return nil }
func (g *genSource) OutputPorts() []component.Port {
	return []component.Port{{Name: "out", Direction: component.DirectionOutput, ElementType: "int"}}
}
func (g *genSource) ConfigSchema() component.ConfigSchema { return component.ConfigSchema{Type: "object"} }
func (g *genSource) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (g *genSource) Run(ctx context.Context) error {
	for _, v := range g.values {
		if ctx.Err() != nil {
			return nil
		}
		g.emit.Emit("out", v)
	}
	return nil
}

// collectSink appends every received int to a slice under a mutex.
type collectSink struct {
	mu  sync.Mutex
	got []int
}

func (c *collectSink) Meta() component.Metadata { return component.Metadata{Name: "collect", Type: "sink"} }
func (c *collectSink) InputPorts() []component.Port {
	return []component.Port{{Name: "in", Direction: component.DirectionInput, ElementType: "int"}}
}
func (c *collectSink) OutputPorts() []component.Port { return nil }
func (c *collectSink) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{Type: "object"}
}
func (c *collectSink) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (c *collectSink) Step(ctx context.Context, slot string, item any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, item.(int))
	return nil
}
func (c *collectSink) snapshot() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.got...)
}

// doubleConduit multiplies each received int by two and re-emits it.
type doubleConduit struct {
	emit component.Emitter
}

func (d *doubleConduit) Meta() component.Metadata { return component.Metadata{Name: "double", Type: "conduit"} }
func (d *doubleConduit) InputPorts() []component.Port {
	return []component.Port{{Name: "in", Direction: component.DirectionInput, ElementType: "int"}}
}
func (d *doubleConduit) OutputPorts() []component.Port {
	return []component.Port{{Name: "out", Direction: component.DirectionOutput, ElementType: "int"}}
}
func (d *doubleConduit) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{Type: "object"}
}
func (d *doubleConduit) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (d *doubleConduit) Step(ctx context.Context, slot string, item any) error {
	d.emit.Emit("out", item.(int)*2)
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLinearPipelineDeliversTransformedValues(t *testing.T) {
	g := graph.New()
	sched := runtime.New(g, nil)

	src := &genSource{values: []int{1, 2, 3}}
	src.emit = sched.Emitter("src")
	dbl := &doubleConduit{}
	dbl.emit = sched.Emitter("dbl")
	sink := &collectSink{}

	require.NoError(t, g.AddNode("src", "gen", src, nil))
	require.NoError(t, g.AddNode("dbl", "double", dbl, nil))
	require.NoError(t, g.AddNode("sink", "collect", sink, nil))
	_, err := g.AddEdge("src", "out", "dbl", "in")
	require.NoError(t, err)
	_, err = g.AddEdge("dbl", "out", "sink", "in")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.StartAll(ctx))

	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 3 })
	assert.ElementsMatch(t, []int{2, 4, 6}, sink.snapshot())

	sched.StopAll()
}

func TestFanOutDeliversToAllSinks(t *testing.T) {
	g := graph.New()
	sched := runtime.New(g, nil)

	src := &genSource{values: []int{1, 2}}
	src.emit = sched.Emitter("src")
	sinkA := &collectSink{}
	sinkB := &collectSink{}

	require.NoError(t, g.AddNode("src", "gen", src, nil))
	require.NoError(t, g.AddNode("a", "collect", sinkA, nil))
	require.NoError(t, g.AddNode("b", "collect", sinkB, nil))
	_, err := g.AddEdge("src", "out", "a", "in")
	require.NoError(t, err)
	_, err = g.AddEdge("src", "out", "b", "in")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.StartAll(ctx))

	waitFor(t, 2*time.Second, func() bool {
		return len(sinkA.snapshot()) == 2 && len(sinkB.snapshot()) == 2
	})

	sched.StopAll()
}

// failingStep always returns a fatal error to verify node failure isolation.
type failingStep struct {
	emit component.Emitter
}

func (f *failingStep) Meta() component.Metadata { return component.Metadata{Name: "fail", Type: "conduit"} }
func (f *failingStep) InputPorts() []component.Port {
	return []component.Port{{Name: "in", Direction: component.DirectionInput, ElementType: "int"}}
}
func (f *failingStep) OutputPorts() []component.Port { return nil }
func (f *failingStep) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{Type: "object"}
}
func (f *failingStep) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: false, LastCheck: time.Now()}
}
func (f *failingStep) Step(ctx context.Context, slot string, item any) error {
	return errors.WrapFatal(assertError("boom"), "failingStep", "Step", "process item")
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestNodeFailureIsolatedFromOtherNodes(t *testing.T) {
	g := graph.New()
	sched := runtime.New(g, nil)

	src := &genSource{values: []int{1}}
	src.emit = sched.Emitter("src")
	sinkA := &collectSink{}
	failer := &failingStep{}

	require.NoError(t, g.AddNode("src", "gen", src, nil))
	require.NoError(t, g.AddNode("a", "collect", sinkA, nil))
	require.NoError(t, g.AddNode("bad", "fail", failer, nil))
	_, err := g.AddEdge("src", "out", "a", "in")
	require.NoError(t, err)
	_, err = g.AddEdge("src", "out", "bad", "in")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.StartAll(ctx))

	waitFor(t, 2*time.Second, func() bool { return len(sinkA.snapshot()) == 1 })

	waitFor(t, 2*time.Second, func() bool {
		state, _ := sched.NodeState("bad")
		return state == component.StateError
	})

	_, badErr := sched.NodeState("bad")
	require.Error(t, badErr)
	assert.Contains(t, badErr.Error(), "boom")

	srcState, srcErr := sched.NodeState("src")
	assert.Equal(t, component.StateRunning, srcState)
	assert.NoError(t, srcErr)

	sched.StopAll()
}
