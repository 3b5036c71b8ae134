package components

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowruntime/flowruntime/component"
)

func TestRegisterOpenAIRegistersBothConduits(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterOpenAI(reg))

	for _, name := range []string{"llm-generate", "speech-synthesize"} {
		_, err := reg.Lookup(name)
		assert.NoError(t, err, "expected %s to be registered", name)
	}
}

func TestLLMGenerateSendsPromptAndEmitsResponseText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello there"}}]
		}`))
	}))
	defer server.Close()

	reg := component.NewRegistry()
	require.NoError(t, RegisterOpenAI(reg))

	raw, _ := json.Marshal(map[string]any{"base_url": server.URL, "model": "gpt-4o-mini"})
	inst, err := reg.Create("llm-generate", raw, component.Dependencies{}, nil)
	require.NoError(t, err)

	emit := newCapturingEmitter()
	gen := inst.(*llmGenerate)
	gen.emit = emit

	stepper, ok := component.AsStepper(inst)
	require.True(t, ok)
	require.NoError(t, stepper.Step(context.Background(), "prompt", "say hi"))

	assert.Equal(t, []any{"hello there"}, emit.items["text"])
}

func TestLLMGenerateRejectsNonStringInput(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterOpenAI(reg))

	raw, _ := json.Marshal(map[string]any{"base_url": "http://127.0.0.1:0", "model": "gpt-4o-mini"})
	inst, err := reg.Create("llm-generate", raw, component.Dependencies{}, newCapturingEmitter())
	require.NoError(t, err)

	stepper, _ := component.AsStepper(inst)
	err = stepper.Step(context.Background(), "prompt", 42)
	assert.Error(t, err)
}

func TestSpeechSynthesizeSendsTextAndEmitsAudioBytes(t *testing.T) {
	wantAudio := []byte{0x01, 0x02, 0x03, 0x04}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(wantAudio)
	}))
	defer server.Close()

	reg := component.NewRegistry()
	require.NoError(t, RegisterOpenAI(reg))

	raw, _ := json.Marshal(map[string]any{"base_url": server.URL, "model": "tts-1", "voice": "alloy"})
	inst, err := reg.Create("speech-synthesize", raw, component.Dependencies{}, nil)
	require.NoError(t, err)

	emit := newCapturingEmitter()
	synth := inst.(*speechSynthesize)
	synth.emit = emit

	stepper, ok := component.AsStepper(inst)
	require.True(t, ok)
	require.NoError(t, stepper.Step(context.Background(), "text", "hello world"))

	require.Len(t, emit.items["audio"], 1)
	assert.Equal(t, wantAudio, emit.items["audio"][0])
}

func TestSpeechSynthesizeRejectsNonStringInput(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, RegisterOpenAI(reg))

	raw, _ := json.Marshal(map[string]any{"base_url": "http://127.0.0.1:0", "model": "tts-1"})
	inst, err := reg.Create("speech-synthesize", raw, component.Dependencies{}, newCapturingEmitter())
	require.NoError(t, err)

	stepper, _ := component.AsStepper(inst)
	err = stepper.Step(context.Background(), "text", 99)
	assert.Error(t, err)
}
