package components

import (
	"context"
	"encoding/json"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowruntime/flowruntime/component"
)

type capturingEmitter struct {
	items map[string][]any
}

func newCapturingEmitter() *capturingEmitter {
	return &capturingEmitter{items: make(map[string][]any)}
}

func (e *capturingEmitter) Emit(slot string, item any) error {
	e.items[slot] = append(e.items[slot], item)
	return nil
}

func TestRegisterReferenceRegistersAllFive(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterReference(reg))

	for _, name := range []string{"gen-sequence", "double", "collect", "slow-sink", "video-sink"} {
		_, err := reg.Lookup(name)
		assert.NoError(t, err, "expected %s to be registered", name)
	}
}

func TestGenSequenceEmitsConfiguredRange(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterReference(reg))

	emit := newCapturingEmitter()
	raw, _ := json.Marshal(map[string]any{"start": 1, "count": 3, "step": 2})
	inst, err := reg.Create("gen-sequence", raw, component.Dependencies{}, emit)
	require.NoError(t, err)

	runnable, ok := component.AsRunnable(inst)
	require.True(t, ok)
	require.NoError(t, runnable.Run(context.Background()))

	assert.Equal(t, []any{1, 3, 5}, emit.items["out"])
}

func TestDoubleConduitMultipliesIncomingInts(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterReference(reg))

	emit := newCapturingEmitter()
	inst, err := reg.Create("double", json.RawMessage(`{"factor":3}`), component.Dependencies{}, emit)
	require.NoError(t, err)

	stepper, ok := component.AsStepper(inst)
	require.True(t, ok)
	require.NoError(t, stepper.Step(context.Background(), "in", 4))

	assert.Equal(t, []any{12}, emit.items["out"])
}

func TestDoubleConduitRejectsWrongType(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterReference(reg))

	emit := newCapturingEmitter()
	inst, err := reg.Create("double", nil, component.Dependencies{}, emit)
	require.NoError(t, err)

	stepper, _ := component.AsStepper(inst)
	err = stepper.Step(context.Background(), "in", "not-an-int")
	assert.Error(t, err)
}

func TestCollectSinkAccumulatesItems(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterReference(reg))

	inst, err := reg.Create("collect", nil, component.Dependencies{}, newCapturingEmitter())
	require.NoError(t, err)

	sink := inst.(*collectSink)
	stepper, _ := component.AsStepper(inst)
	require.NoError(t, stepper.Step(context.Background(), "in", 1))
	require.NoError(t, stepper.Step(context.Background(), "in", 2))

	assert.Equal(t, []any{1, 2}, sink.Items())
}

func TestSlowSinkHonorsContextCancellation(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterReference(reg))

	inst, err := reg.Create("slow-sink", json.RawMessage(`{"delay_ms":1000}`), component.Dependencies{}, newCapturingEmitter())
	require.NoError(t, err)

	sink := inst.(*slowSink)
	stepper, _ := component.AsStepper(inst)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, stepper.Step(ctx, "in", 1))
	assert.Equal(t, 0, sink.Handled(), "cancellation should pre-empt the sleep before incrementing")
}

func TestVideoSinkEncodesFramesAsJPEG(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterReference(reg))

	inst, err := reg.Create("video-sink", json.RawMessage(`{"jpeg_quality":50}`), component.Dependencies{}, newCapturingEmitter())
	require.NoError(t, err)

	sink := inst.(FrameSink)
	stepper, _ := component.AsStepper(inst)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	require.NoError(t, stepper.Step(context.Background(), "in", img))

	select {
	case frame := <-sink.Frames():
		assert.NotEmpty(t, frame)
		assert.Equal(t, byte(0xFF), frame[0])
		assert.Equal(t, byte(0xD8), frame[1]) // JPEG SOI marker
	case <-time.After(time.Second):
		t.Fatal("expected an encoded frame")
	}
}

func TestVideoSinkRejectsNonImageInput(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterReference(reg))

	inst, err := reg.Create("video-sink", nil, component.Dependencies{}, newCapturingEmitter())
	require.NoError(t, err)

	stepper, _ := component.AsStepper(inst)
	err = stepper.Step(context.Background(), "in", "not-an-image")
	assert.Error(t, err)
}
