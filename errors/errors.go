// Package errors provides classified, machine-readable error handling for
// flowruntime, following the same three-class scheme (transient, invalid,
// fatal) the rest of the stack uses for retry and escalation decisions, plus
// a closed set of control-surface error Kinds with stable HTTP mappings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Class represents the retry/escalation classification of an error.
type Class int

const (
	// Transient errors may be retried.
	Transient Class = iota
	// Invalid errors are caused by bad input or configuration; do not retry.
	Invalid
	// Fatal errors are unrecoverable; stop processing.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind is the stable, machine-readable error code surfaced by the control
// surface (spec §7). The set is closed — do not add members casually.
type Kind string

const (
	ComponentNotFound Kind = "ComponentNotFound"
	InvalidArgs       Kind = "InvalidArgs"
	DuplicateId       Kind = "DuplicateId"
	NodeNotFound      Kind = "NodeNotFound"
	UnknownSlot       Kind = "UnknownSlot"
	TypeMismatch      Kind = "TypeMismatch"
	DuplicateEdge     Kind = "DuplicateEdge"
	CycleDetected     Kind = "CycleDetected"
	EdgeNotFound      Kind = "EdgeNotFound"
	AlreadyRunning    Kind = "AlreadyRunning"
	AlreadySubscribed Kind = "AlreadySubscribed"
	ChannelClosed     Kind = "ChannelClosed"
)

// httpStatus maps each Kind to the HTTP status the control surface must
// return for it (spec §6.1 error columns).
var httpStatus = map[Kind]int{
	ComponentNotFound: http.StatusNotFound,
	InvalidArgs:       http.StatusBadRequest,
	DuplicateId:       http.StatusConflict,
	NodeNotFound:      http.StatusNotFound,
	UnknownSlot:       http.StatusBadRequest,
	TypeMismatch:      http.StatusBadRequest,
	DuplicateEdge:     http.StatusBadRequest,
	CycleDetected:     http.StatusBadRequest,
	EdgeNotFound:      http.StatusNotFound,
	AlreadyRunning:    http.StatusConflict,
	AlreadySubscribed: http.StatusConflict,
	ChannelClosed:     http.StatusGone,
}

// KindError is a Kind bound to a human-readable message. It satisfies the
// standard error interface and carries enough information for the control
// surface to build the {error, detail} JSON body directly.
type KindError struct {
	Kind    Kind
	Message string
	class   Class
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus returns the status code the control surface should return.
func (e *KindError) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Class returns the retry classification of the error.
func (e *KindError) Class() Class {
	return e.class
}

// New creates a KindError with the given kind and formatted message.
// All control-surface-facing Kinds are invalid-class (non-retryable client
// errors) except ChannelClosed, which is transient from a producer's point
// of view (the consumer may reconnect).
func New(kind Kind, format string, args ...any) *KindError {
	class := Invalid
	if kind == ChannelClosed {
		class = Transient
	}
	return &KindError{Kind: kind, Message: fmt.Sprintf(format, args...), class: class}
}

// As extracts a *KindError from err, following errors.As semantics.
func As(err error) (*KindError, bool) {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke, true
	}
	return nil, false
}

// ClassifiedError wraps an arbitrary error with a Class and call-site
// context, for internal (non control-surface) error propagation —
// node task failures, channel plumbing, metrics sampling.
type ClassifiedError struct {
	class     Class
	err       error
	component string
	operation string
}

func (ce *ClassifiedError) Error() string {
	return fmt.Sprintf("%s.%s: %v", ce.component, ce.operation, ce.err)
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.err
}

func (ce *ClassifiedError) Class() Class {
	return ce.class
}

// Wrap annotates err with "component.operation: action failed: %w" context,
// preserving classification if err is already classified, defaulting to
// Transient otherwise.
func Wrap(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	class := Transient
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		class = ce.class
	}
	wrapped := fmt.Errorf("%s.%s: %s failed: %w", component, operation, action, err)
	return &ClassifiedError{class: class, err: wrapped, component: component, operation: operation}
}

// WrapTransient wraps err and marks it Transient (retryable).
func WrapTransient(err error, component, operation, action string) error {
	return classify(Transient, err, component, operation, action)
}

// WrapInvalid wraps err and marks it Invalid (do not retry).
func WrapInvalid(err error, component, operation, action string) error {
	return classify(Invalid, err, component, operation, action)
}

// WrapFatal wraps err and marks it Fatal (stop processing).
func WrapFatal(err error, component, operation, action string) error {
	return classify(Fatal, err, component, operation, action)
}

func classify(class Class, err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s.%s: %s failed: %w", component, operation, action, err)
	return &ClassifiedError{class: class, err: wrapped, component: component, operation: operation}
}

// IsTransient reports whether err is classified Transient.
func IsTransient(err error) bool { return classOf(err) == Transient }

// IsFatal reports whether err is classified Fatal.
func IsFatal(err error) bool { return classOf(err) == Fatal }

func classOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.class
	}
	return Transient
}
