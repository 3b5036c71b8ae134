package component

import (
	"context"
	"time"
)

// Stepper is implemented by components that process one input item per
// call (spec §4.4's any-input stepping policy). Slot is the input port
// name the item arrived on; the component publishes results itself via
// the Emitter handed to it at construction.
type Stepper interface {
	Step(ctx context.Context, slot string, item any) error
}

// Runnable is implemented by components that drive their own loop —
// sources with no inputs, or sinks/conduits that need a background
// goroutine beyond simple per-item stepping.
type Runnable interface {
	Run(ctx context.Context) error
}

// LifecycleComponent is satisfied by any component needing explicit
// startup/shutdown hooks around its Step/Run behavior.
type LifecycleComponent interface {
	Discoverable
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// IsLifecycleComponent reports whether comp supports explicit lifecycle hooks.
func IsLifecycleComponent(comp Discoverable) bool {
	_, ok := comp.(LifecycleComponent)
	return ok
}

// AsLifecycleComponent safely casts comp to LifecycleComponent.
func AsLifecycleComponent(comp Discoverable) (LifecycleComponent, bool) {
	lc, ok := comp.(LifecycleComponent)
	return lc, ok
}

// AsStepper safely casts comp to Stepper.
func AsStepper(comp Discoverable) (Stepper, bool) {
	st, ok := comp.(Stepper)
	return st, ok
}

// AsRunnable safely casts comp to Runnable.
func AsRunnable(comp Discoverable) (Runnable, bool) {
	r, ok := comp.(Runnable)
	return r, ok
}
