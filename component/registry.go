package component

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/flowruntime/flowruntime/errors"
)

// Dependencies are the shared services a factory may use to build its
// component instance — currently just structured logging, with room to
// grow the way the rest of the stack grows its dependency bag.
type Dependencies struct {
	Logger Logger
}

// Logger is the minimal structured-logging surface components need; it
// is satisfied directly by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Emitter is the handle a Stepper or Runnable component uses to publish
// to one of its declared output ports.
type Emitter interface {
	Emit(slot string, item any) error
}

// Factory creates a component instance from raw JSON configuration. The
// factory must not perform I/O — long-lived setup belongs in Start.
type Factory func(rawConfig json.RawMessage, deps Dependencies, emit Emitter) (Discoverable, error)

// Registration holds a factory and the metadata the control surface
// reports about it (spec §6.1's GET /component listing, §11 of the
// expanded scope).
type Registration struct {
	Name        string
	Type        string // "source", "conduit", "sink"
	Protocol    string
	Domain      string
	Description string
	Version     string
	Schema      ConfigSchema
	Factory     Factory
}

// Registry is the process-wide catalog of component factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]*Registration)}
}

// Register adds a factory under Name, failing if that name is already taken.
func (r *Registry) Register(reg *Registration) error {
	if reg == nil || reg.Name == "" || reg.Factory == nil {
		return errors.New(errors.InvalidArgs, "registration requires a name and factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[reg.Name]; exists {
		return errors.New(errors.DuplicateId, "component %q already registered", reg.Name)
	}
	r.factories[reg.Name] = reg
	return nil
}

// Lookup returns the registration for name, or ComponentNotFound.
func (r *Registry) Lookup(name string) (*Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, exists := r.factories[name]
	if !exists {
		return nil, errors.New(errors.ComponentNotFound, "no component type %q registered", name)
	}
	return reg, nil
}

// List returns every registration, for the control surface's discovery
// endpoint, in a stable order (category then name, per spec §4.2) so
// repeated calls and different clients see the same ordering rather
// than Go's randomized map iteration order. The returned slice is a
// snapshot; mutating it does not affect the registry.
func (r *Registry) List() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Registration, 0, len(r.factories))
	for _, reg := range r.factories {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Create instantiates a component of the named type, validating the raw
// config against the factory's schema before invoking it.
func (r *Registry) Create(typeName string, rawConfig json.RawMessage, deps Dependencies, emit Emitter) (Discoverable, error) {
	reg, err := r.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	if err := ValidateAgainstSchema(rawConfig, reg.Schema); err != nil {
		return nil, errors.New(errors.InvalidArgs, "Registry.Create: config validation failed: %v", err)
	}
	comp, err := reg.Factory(rawConfig, deps, emit)
	if err != nil {
		return nil, errors.New(errors.InvalidArgs, "Registry.Create: factory invocation failed: %v", err)
	}
	return comp, nil
}
