// Package components holds the reference component factories shipped
// with flowruntime: stdlib-only sources/conduits/sinks useful for
// testing and demonstration, and a pair of conduits backed by an
// external OpenAI-compatible HTTP API.
package components

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/flowruntime/flowruntime/component"
)

// RegisterReference registers every stdlib-only reference component
// into reg: gen-sequence, double, collect, slow-sink, video-sink.
func RegisterReference(reg *component.Registry) error {
	for _, r := range []*component.Registration{
		genSequenceRegistration(),
		doubleRegistration(),
		collectRegistration(),
		slowSinkRegistration(),
		videoSinkRegistration(),
	} {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// --- gen-sequence: emits a configurable arithmetic sequence of ints ---

type genSequenceConfig struct {
	Start    int `json:"start" schema:"type:int,description:First value emitted,default:0"`
	Count    int `json:"count" schema:"type:int,description:How many values to emit,default:10,min:1"`
	Step     int `json:"step" schema:"type:int,description:Increment between values,default:1"`
	PeriodMS int `json:"period_ms" schema:"type:int,description:Delay between emissions in milliseconds,default:0,min:0"`
}

type genSequence struct {
	cfg  genSequenceConfig
	emit component.Emitter
}

func genSequenceRegistration() *component.Registration {
	return &component.Registration{
		Name:        "gen-sequence",
		Type:        "source",
		Protocol:    "memory",
		Domain:      "testing",
		Description: "Emits a fixed arithmetic sequence of integers, then stops.",
		Version:     "1.0.0",
		Schema:      component.GenerateConfigSchema(reflectTypeOf(genSequenceConfig{})),
		Factory: func(raw json.RawMessage, deps component.Dependencies, emit component.Emitter) (component.Discoverable, error) {
			cfg := genSequenceConfig{Count: 10, Step: 1}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return nil, fmt.Errorf("gen-sequence: %w", err)
				}
			}
			return &genSequence{cfg: cfg, emit: emit}, nil
		},
	}
}

func (g *genSequence) Meta() component.Metadata {
	return component.Metadata{Name: "gen-sequence", Type: "source", Description: "integer sequence generator", Version: "1.0.0"}
}
func (g *genSequence) InputPorts() []component.Port { return nil }
func (g *genSequence) OutputPorts() []component.Port {
	return []component.Port{{Name: "out", Direction: component.DirectionOutput, ElementType: "int"}}
}
func (g *genSequence) ConfigSchema() component.ConfigSchema {
	return component.GenerateConfigSchema(reflectTypeOf(genSequenceConfig{}))
}
func (g *genSequence) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (g *genSequence) Run(ctx context.Context) error {
	v := g.cfg.Start
	for i := 0; i < g.cfg.Count; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := g.emit.Emit("out", v); err != nil {
			return err
		}
		v += g.cfg.Step
		if g.cfg.PeriodMS > 0 {
			select {
			case <-time.After(time.Duration(g.cfg.PeriodMS) * time.Millisecond):
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// --- double: multiplies each incoming int by a configurable factor ---

type doubleConfig struct {
	Factor int `json:"factor" schema:"type:int,description:Multiplier applied to each item,default:2"`
}

type doubleConduit struct {
	cfg  doubleConfig
	emit component.Emitter
}

func doubleRegistration() *component.Registration {
	return &component.Registration{
		Name:        "double",
		Type:        "conduit",
		Protocol:    "memory",
		Domain:      "testing",
		Description: "Multiplies each incoming integer by a configurable factor.",
		Version:     "1.0.0",
		Schema:      component.GenerateConfigSchema(reflectTypeOf(doubleConfig{})),
		Factory: func(raw json.RawMessage, deps component.Dependencies, emit component.Emitter) (component.Discoverable, error) {
			cfg := doubleConfig{Factor: 2}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return nil, fmt.Errorf("double: %w", err)
				}
			}
			return &doubleConduit{cfg: cfg, emit: emit}, nil
		},
	}
}

func (d *doubleConduit) Meta() component.Metadata {
	return component.Metadata{Name: "double", Type: "conduit", Description: "integer multiplier", Version: "1.0.0"}
}
func (d *doubleConduit) InputPorts() []component.Port {
	return []component.Port{{Name: "in", Direction: component.DirectionInput, ElementType: "int", Required: true}}
}
func (d *doubleConduit) OutputPorts() []component.Port {
	return []component.Port{{Name: "out", Direction: component.DirectionOutput, ElementType: "int"}}
}
func (d *doubleConduit) ConfigSchema() component.ConfigSchema {
	return component.GenerateConfigSchema(reflectTypeOf(doubleConfig{}))
}
func (d *doubleConduit) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (d *doubleConduit) Step(ctx context.Context, slot string, item any) error {
	n, ok := item.(int)
	if !ok {
		return fmt.Errorf("double: expected int, got %T", item)
	}
	return d.emit.Emit("out", n*d.cfg.Factor)
}

// --- collect: accumulates every received item, for tests and inspection ---

type collectSink struct {
	mu    sync.Mutex
	items []any
}

func collectRegistration() *component.Registration {
	return &component.Registration{
		Name:        "collect",
		Type:        "sink",
		Protocol:    "memory",
		Domain:      "testing",
		Description: "Accumulates every received item for later inspection.",
		Version:     "1.0.0",
		Schema:      component.ConfigSchema{Type: "object"},
		Factory: func(raw json.RawMessage, deps component.Dependencies, emit component.Emitter) (component.Discoverable, error) {
			return &collectSink{}, nil
		},
	}
}

func (c *collectSink) Meta() component.Metadata {
	return component.Metadata{Name: "collect", Type: "sink", Description: "accumulating sink", Version: "1.0.0"}
}
func (c *collectSink) InputPorts() []component.Port {
	return []component.Port{{Name: "in", Direction: component.DirectionInput, ElementType: "any", Required: true}}
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
	c.items = append(c.items, item)
	return nil
}

// Items returns a snapshot of everything collected so far.
func (c *collectSink) Items() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.items...)
}

// --- slow-sink: an artificially slow consumer, for exercising the
// channel's drop-oldest backpressure path in an integration test ---

type slowSinkConfig struct {
	DelayMS int `json:"delay_ms" schema:"type:int,description:Artificial processing delay per item,default:100,min:0"`
}

type slowSink struct {
	cfg     slowSinkConfig
	mu      sync.Mutex
	handled int
}

func slowSinkRegistration() *component.Registration {
	return &component.Registration{
		Name:        "slow-sink",
		Type:        "sink",
		Protocol:    "memory",
		Domain:      "testing",
		Description: "Sleeps before acknowledging each item, to exercise backpressure.",
		Version:     "1.0.0",
		Schema:      component.GenerateConfigSchema(reflectTypeOf(slowSinkConfig{})),
		Factory: func(raw json.RawMessage, deps component.Dependencies, emit component.Emitter) (component.Discoverable, error) {
			cfg := slowSinkConfig{DelayMS: 100}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return nil, fmt.Errorf("slow-sink: %w", err)
				}
			}
			return &slowSink{cfg: cfg}, nil
		},
	}
}

func (s *slowSink) Meta() component.Metadata {
	return component.Metadata{Name: "slow-sink", Type: "sink", Description: "artificially slow sink", Version: "1.0.0"}
}
func (s *slowSink) InputPorts() []component.Port {
	return []component.Port{{Name: "in", Direction: component.DirectionInput, ElementType: "any", Required: true}}
}
func (s *slowSink) OutputPorts() []component.Port { return nil }
func (s *slowSink) ConfigSchema() component.ConfigSchema {
	return component.GenerateConfigSchema(reflectTypeOf(slowSinkConfig{}))
}
func (s *slowSink) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (s *slowSink) Step(ctx context.Context, slot string, item any) error {
	select {
	case <-time.After(time.Duration(s.cfg.DelayMS) * time.Millisecond):
	case <-ctx.Done():
		return nil
	}
	s.mu.Lock()
	s.handled++
	s.mu.Unlock()
	return nil
}

// Handled returns how many items this sink has finished processing.
func (s *slowSink) Handled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handled
}

// --- video-sink: encodes received frames as JPEG, for streaming over
// the control surface's binary WebSocket endpoint ---

type videoSinkConfig struct {
	JPEGQuality int    `json:"jpeg_quality" schema:"type:int,description:JPEG encoding quality,default:80,min:1,max:100"`
	Device      string `json:"device" schema:"type:string,description:Named output device this sink exclusively binds (e.g. a display or capture card id); empty means no exclusive claim"`
}

// FrameSink is the minimal surface the control surface's WebSocket
// handler needs from a video-sink instance to pull encoded frames.
type FrameSink interface {
	Frames() <-chan []byte
}

type videoSink struct {
	cfg    videoSinkConfig
	frames chan []byte
}

func videoSinkRegistration() *component.Registration {
	return &component.Registration{
		Name:        "video-sink",
		Type:        "sink",
		Protocol:    "memory",
		Domain:      "media",
		Description: "Encodes received image.Image frames as JPEG for WebSocket delivery.",
		Version:     "1.0.0",
		Schema:      component.GenerateConfigSchema(reflectTypeOf(videoSinkConfig{})),
		Factory: func(raw json.RawMessage, deps component.Dependencies, emit component.Emitter) (component.Discoverable, error) {
			cfg := videoSinkConfig{JPEGQuality: 80, Device: ""}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return nil, fmt.Errorf("video-sink: %w", err)
				}
			}
			return &videoSink{cfg: cfg, frames: make(chan []byte, 4)}, nil
		},
	}
}

func (v *videoSink) Meta() component.Metadata {
	return component.Metadata{Name: "video-sink", Type: "sink", Description: "JPEG frame encoder", Version: "1.0.0"}
}
func (v *videoSink) InputPorts() []component.Port {
	return []component.Port{{Name: "in", Direction: component.DirectionInput, ElementType: "image", Required: true}}
}
func (v *videoSink) OutputPorts() []component.Port { return nil }
func (v *videoSink) ConfigSchema() component.ConfigSchema {
	return component.GenerateConfigSchema(reflectTypeOf(videoSinkConfig{}))
}
func (v *videoSink) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (v *videoSink) Step(ctx context.Context, slot string, item any) error {
	img, ok := item.(image.Image)
	if !ok {
		return fmt.Errorf("video-sink: expected image.Image, got %T", item)
	}

	var buf jpegBuffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: v.cfg.JPEGQuality}); err != nil {
		return fmt.Errorf("video-sink: encode frame: %w", err)
	}

	select {
	case v.frames <- buf.data:
	default:
		// a slow websocket reader drops the frame rather than blocking the pipeline
	}
	return nil
}

// Frames returns the channel of JPEG-encoded frames for the control
// surface's WebSocket handler to drain.
func (v *videoSink) Frames() <-chan []byte { return v.frames }

// ResourceKey reports the output device this sink exclusively binds, if
// any was configured, so the control surface can reject a second node
// claiming the same device.
func (v *videoSink) ResourceKey() (string, bool) {
	if v.cfg.Device == "" {
		return "", false
	}
	return "device:" + v.cfg.Device, true
}

type jpegBuffer struct{ data []byte }

func (b *jpegBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
