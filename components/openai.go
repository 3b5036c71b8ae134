package components

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flowruntime/flowruntime/component"
)

// RegisterOpenAI registers the llm-generate and speech-synthesize
// conduits, both backed by an OpenAI-compatible HTTP API reached the way
// an embedding client in the reference stack reaches one: a configurable
// BaseURL so the same factory targets either the OpenAI cloud API or a
// self-hosted compatible server.
func RegisterOpenAI(reg *component.Registry) error {
	for _, r := range []*component.Registration{
		llmGenerateRegistration(),
		speechSynthesizeRegistration(),
	} {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}

func newOpenAIClient(baseURL, apiKey string, timeout time.Duration) *openai.Client {
	if apiKey == "" {
		apiKey = "dummy-key" // self-hosted compatible servers often don't check it
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(cfg)
}

// --- llm-generate: sends each received prompt string through a chat
// completion and emits the response text ---

type llmGenerateConfig struct {
	BaseURL     string  `json:"base_url" schema:"type:string,description:OpenAI-compatible API base URL,default:https://api.openai.com/v1"`
	APIKey      string  `json:"api_key" schema:"type:string,description:API key"`
	Model       string  `json:"model" schema:"required,type:string,description:Chat completion model,default:gpt-4o-mini"`
	System      string  `json:"system" schema:"type:string,description:System prompt prepended to every request"`
	Temperature float64 `json:"temperature" schema:"type:number,description:Sampling temperature,min:0,max:2,default:0.7"`
}

type llmGenerate struct {
	cfg    llmGenerateConfig
	client *openai.Client
	emit   component.Emitter
}

func llmGenerateRegistration() *component.Registration {
	return &component.Registration{
		Name:        "llm-generate",
		Type:        "conduit",
		Protocol:    "http",
		Domain:      "language",
		Description: "Sends each received prompt through a chat completion and emits the response text.",
		Version:     "1.0.0",
		Schema:      component.GenerateConfigSchema(reflectTypeOf(llmGenerateConfig{})),
		Factory: func(raw json.RawMessage, deps component.Dependencies, emit component.Emitter) (component.Discoverable, error) {
			cfg := llmGenerateConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", Temperature: 0.7}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return nil, fmt.Errorf("llm-generate: %w", err)
				}
			}
			if cfg.Model == "" {
				return nil, fmt.Errorf("llm-generate: model is required")
			}
			return &llmGenerate{
				cfg:    cfg,
				client: newOpenAIClient(cfg.BaseURL, cfg.APIKey, 0),
				emit:   emit,
			}, nil
		},
	}
}

func (l *llmGenerate) Meta() component.Metadata {
	return component.Metadata{Name: "llm-generate", Type: "conduit", Description: "chat completion conduit", Version: "1.0.0"}
}
func (l *llmGenerate) InputPorts() []component.Port {
	return []component.Port{{Name: "prompt", Direction: component.DirectionInput, ElementType: "string", Required: true}}
}
func (l *llmGenerate) OutputPorts() []component.Port {
	return []component.Port{{Name: "text", Direction: component.DirectionOutput, ElementType: "string"}}
}
func (l *llmGenerate) ConfigSchema() component.ConfigSchema {
	return component.GenerateConfigSchema(reflectTypeOf(llmGenerateConfig{}))
}
func (l *llmGenerate) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (l *llmGenerate) Step(ctx context.Context, slot string, item any) error {
	prompt, ok := item.(string)
	if !ok {
		return fmt.Errorf("llm-generate: expected string, got %T", item)
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if l.cfg.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: l.cfg.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.cfg.Model,
		Messages:    messages,
		Temperature: float32(l.cfg.Temperature),
	})
	if err != nil {
		return fmt.Errorf("llm-generate: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("llm-generate: empty response")
	}

	return l.emit.Emit("text", resp.Choices[0].Message.Content)
}

// --- speech-synthesize: sends each received text string through
// text-to-speech and emits the resulting audio bytes ---

type speechSynthesizeConfig struct {
	BaseURL string `json:"base_url" schema:"type:string,description:OpenAI-compatible API base URL,default:https://api.openai.com/v1"`
	APIKey  string `json:"api_key" schema:"type:string,description:API key"`
	Model   string `json:"model" schema:"required,type:string,description:Text-to-speech model,default:tts-1"`
	Voice   string `json:"voice" schema:"type:enum,description:Voice,enum:alloy|echo|fable|onyx|nova|shimmer,default:alloy"`
}

type speechSynthesize struct {
	cfg    speechSynthesizeConfig
	client *openai.Client
	emit   component.Emitter
}

func speechSynthesizeRegistration() *component.Registration {
	return &component.Registration{
		Name:        "speech-synthesize",
		Type:        "conduit",
		Protocol:    "http",
		Domain:      "audio",
		Description: "Sends each received text string through text-to-speech and emits the resulting audio bytes.",
		Version:     "1.0.0",
		Schema:      component.GenerateConfigSchema(reflectTypeOf(speechSynthesizeConfig{})),
		Factory: func(raw json.RawMessage, deps component.Dependencies, emit component.Emitter) (component.Discoverable, error) {
			cfg := speechSynthesizeConfig{BaseURL: "https://api.openai.com/v1", Model: "tts-1", Voice: "alloy"}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return nil, fmt.Errorf("speech-synthesize: %w", err)
				}
			}
			if cfg.Model == "" {
				return nil, fmt.Errorf("speech-synthesize: model is required")
			}
			return &speechSynthesize{
				cfg:    cfg,
				client: newOpenAIClient(cfg.BaseURL, cfg.APIKey, 0),
				emit:   emit,
			}, nil
		},
	}
}

func (s *speechSynthesize) Meta() component.Metadata {
	return component.Metadata{Name: "speech-synthesize", Type: "conduit", Description: "text-to-speech conduit", Version: "1.0.0"}
}
func (s *speechSynthesize) InputPorts() []component.Port {
	return []component.Port{{Name: "text", Direction: component.DirectionInput, ElementType: "string", Required: true}}
}
func (s *speechSynthesize) OutputPorts() []component.Port {
	return []component.Port{{Name: "audio", Direction: component.DirectionOutput, ElementType: "bytes"}}
}
func (s *speechSynthesize) ConfigSchema() component.ConfigSchema {
	return component.GenerateConfigSchema(reflectTypeOf(speechSynthesizeConfig{}))
}
func (s *speechSynthesize) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (s *speechSynthesize) Step(ctx context.Context, slot string, item any) error {
	text, ok := item.(string)
	if !ok {
		return fmt.Errorf("speech-synthesize: expected string, got %T", item)
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(s.cfg.Model),
		Input: text,
		Voice: openai.SpeechVoice(s.cfg.Voice),
	})
	if err != nil {
		return fmt.Errorf("speech-synthesize: create speech: %w", err)
	}
	defer resp.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp); err != nil {
		return fmt.Errorf("speech-synthesize: read audio: %w", err)
	}

	return s.emit.Emit("audio", buf.Bytes())
}
