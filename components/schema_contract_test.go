package components

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flowruntime/flowruntime/component"
)

// TestSpeechSynthesizeSchemaMatchesExpectedShape guards against silent
// schema-tag drift on speech-synthesize's config, the way a committed-
// schema contract test catches registration code diverging from a
// published schema file.
func TestSpeechSynthesizeSchemaMatchesExpectedShape(t *testing.T) {
	got := speechSynthesizeRegistration().Schema

	want := component.ConfigSchema{
		Type: "object",
		Properties: map[string]component.PropertySchema{
			"base_url": {Type: "string", Description: "OpenAI-compatible API base URL", Default: "https://api.openai.com/v1"},
			"api_key":  {Type: "string", Description: "API key"},
			"model":    {Type: "string", Description: "Text-to-speech model", Default: "tts-1"},
			"voice": {
				Type:        "enum",
				Description: "Voice",
				Enum:        []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
				Default:     "alloy",
			},
		},
		Required: []string{"model"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("speech-synthesize schema drifted from expected shape (-want +got):\n%s", diff)
	}
}

// TestGenerateConfigSchemaIsDeterministic ensures repeated schema
// generation for the same config struct produces byte-for-byte
// identical output, since each component instance's ConfigSchema()
// regenerates its schema on every call rather than caching it.
func TestGenerateConfigSchemaIsDeterministic(t *testing.T) {
	first := component.GenerateConfigSchema(reflectTypeOf(llmGenerateConfig{}))
	second := component.GenerateConfigSchema(reflectTypeOf(llmGenerateConfig{}))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("schema generation is non-deterministic (-first +second):\n%s", diff)
	}
}
